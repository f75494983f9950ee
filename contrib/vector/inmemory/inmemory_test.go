package inmemory

import (
	"context"
	"errors"
	"testing"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// TestInMemoryVectorStore tests in-memory vector store
func TestInMemoryVectorStore(t *testing.T) {
	store := NewInMemoryVectorStore()
	ctx := context.Background()

	t.Run("add and retrieve embedding", func(t *testing.T) {
		emb := &vector.Embedding{
			ID:     "who-mgso4",
			Text:   "Magnesium sulfate is the drug of choice",
			Source: "WHO 2011",
			Vector: []float32{0.1, 0.2, 0.3},
		}

		if err := store.AddEmbedding(ctx, emb); err != nil {
			t.Fatalf("AddEmbedding failed: %v", err)
		}

		retrieved, err := store.GetEmbedding(ctx, "who-mgso4")
		if err != nil {
			t.Fatalf("GetEmbedding failed: %v", err)
		}
		if retrieved.Text != emb.Text || retrieved.Source != emb.Source {
			t.Errorf("retrieved %+v", retrieved)
		}
	})

	t.Run("search orders by similarity and sets score", func(t *testing.T) {
		_ = store.Clear(ctx)

		for _, emb := range []*vector.Embedding{
			{ID: "emb1", Text: "eclampsia", Vector: []float32{1.0, 0.0, 0.0}},
			{ID: "emb2", Text: "postpartum", Vector: []float32{0.0, 1.0, 0.0}},
			{ID: "emb3", Text: "labetalol", Vector: []float32{0.7, 0.7, 0.0}},
		} {
			if err := store.AddEmbedding(ctx, emb); err != nil {
				t.Fatal(err)
			}
		}

		results, err := store.Search(ctx, []float32{1.0, 0.0, 0.0}, 2)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if results[0].ID != "emb1" || results[1].ID != "emb3" {
			t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
		}
		if results[0].Score < 0.999 || results[1].Score <= 0 || results[1].Score >= results[0].Score {
			t.Errorf("unexpected scores: %v, %v", results[0].Score, results[1].Score)
		}
	})

	t.Run("search does not leak scores into storage", func(t *testing.T) {
		got, err := store.GetEmbedding(ctx, "emb1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Score != 0 {
			t.Errorf("stored score mutated: %v", got.Score)
		}
	})

	t.Run("empty query rejected", func(t *testing.T) {
		if _, err := store.Search(ctx, nil, 3); !errors.Is(err, matrixerrors.ErrInvalidInput) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("delete and count", func(t *testing.T) {
		if err := store.DeleteEmbedding(ctx, "emb2"); err != nil {
			t.Fatal(err)
		}
		if err := store.DeleteEmbedding(ctx, "emb2"); !errors.Is(err, matrixerrors.ErrNotFound) {
			t.Errorf("second delete error = %v", err)
		}
		if n, _ := store.Count(ctx); n != 2 {
			t.Errorf("Count() = %d, want 2", n)
		}
	})
}
