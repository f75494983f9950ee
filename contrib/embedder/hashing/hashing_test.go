package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

func TestEmbedIsDeterministicAndUnitLength(t *testing.T) {
	e := New(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Severe pre-eclampsia: give magnesium sulfate")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "Severe pre-eclampsia: give magnesium sulfate")
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs", i)
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v", norm)
	}
}

func TestEmbedRanksOverlapHigher(t *testing.T) {
	e := New(DefaultDimension)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "magnesium sulfate seizure prophylaxis")
	near, _ := e.Embed(ctx, "Magnesium sulfate is recommended for seizure prophylaxis in severe pre-eclampsia")
	far, _ := e.Embed(ctx, "Postpartum haemorrhage requires uterotonics")

	if vector.CosineSimilarity(q, near) <= vector.CosineSimilarity(q, far) {
		t.Error("overlapping text should score higher")
	}
}

func TestEmbedEmptyAndCancelled(t *testing.T) {
	e := New(0)
	if e.Dimension() != DefaultDimension {
		t.Fatalf("Dimension() = %d", e.Dimension())
	}
	v, err := e.Embed(context.Background(), "")
	if err != nil || len(v) != DefaultDimension {
		t.Fatalf("empty text = %d, %v", len(v), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("BP 160/110, GA-34wk")
	want := []string{"bp", "160", "110", "ga", "34wk"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
