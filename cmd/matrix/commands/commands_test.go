package commands

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/config"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

func TestParseIntake(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("jpeg"))
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "single object", input: `{"bp_systolic":165,"bp_diastolic":112,"symptoms":["headache"]}`, want: 1},
		{name: "array", input: ` [{"bp_systolic":120,"bp_diastolic":80},{"bp_systolic":150,"bp_diastolic":95}]`, want: 2},
		{name: "with image", input: `{"bp_systolic":120,"bp_diastolic":80,"image_base64":"` + img + `"}`, want: 1},
		{name: "empty", input: "  \n", wantErr: true},
		{name: "empty array", input: "[]", wantErr: true},
		{name: "bad json", input: "{", wantErr: true},
		{name: "bad image", input: `{"bp_systolic":120,"bp_diastolic":80,"image_base64":"%%"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntake([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseIntake() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d patients, want %d", len(got), tt.want)
			}
		})
	}

	got, _ := parseIntake([]byte(`{"bp_systolic":165,"bp_diastolic":112,"symptoms":["headache","visual_disturbance"]}`))
	if !got[0].Headache || !got[0].VisualDisturbance {
		t.Errorf("symptoms not mapped: %+v", got[0])
	}
}

func TestNewRemoteBackend(t *testing.T) {
	tests := []struct {
		provider string
		remote   bool
		wantErr  bool
	}{
		{provider: "tgi", remote: true},
		{provider: "openai", remote: true},
		{provider: "claude", remote: true},
		{provider: "GEMINI", remote: true},
		{provider: "bedrock", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			b, err := newRemoteBackend(config.RemoteModelConfig{
				Provider: tt.provider,
				BaseURL:  "http://127.0.0.1:1",
				APIKey:   "test",
				Model:    "m",
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && agent.IsRemote(b) != tt.remote {
				t.Errorf("IsRemote(%s) = %v", b.Name(), agent.IsRemote(b))
			}
		})
	}
}

func TestNewBackendsSplitsVisionModel(t *testing.T) {
	cfg := config.Default()
	cfg.Local.VisionModel = "llava:7b"
	cfg.Executive = []config.RemoteModelConfig{{Provider: "tgi", BaseURL: "http://tgi.invalid"}}

	set, err := newBackends(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if set.local.Name() == set.localVision.Name() {
		t.Fatalf("vision model should get its own backend, both are %s", set.local.Name())
	}
	if agent.SupportsVision(set.local) || !agent.SupportsVision(set.localVision) {
		t.Error("vision capability assigned to the wrong local backend")
	}
	if n := len(set.all()); n != 3 {
		t.Errorf("all() = %d backends, want 3", n)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	tc := config.Default().Topology
	tc.Mode = "offline"
	tc.ExecutiveAgentEnabled = false

	p, err := policyFromConfig(tc)
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != topology.Offline || p.ExecutiveAgentEnabled || p.UpdatedBy != "config" {
		t.Errorf("policy = %+v", p)
	}

	tc.Mode = "satellite"
	if _, err := policyFromConfig(tc); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestUpdateFromFlags(t *testing.T) {
	if err := topologySetCmd.ParseFlags([]string{"--mode", "cloud", "--vision=false"}); err != nil {
		t.Fatal(err)
	}
	u, err := updateFromFlags(topologySetCmd)
	if err != nil {
		t.Fatal(err)
	}
	if u.Mode == nil || *u.Mode != topology.Cloud {
		t.Errorf("mode = %v", u.Mode)
	}
	if u.VisionEnabled == nil || *u.VisionEnabled {
		t.Errorf("vision = %v", u.VisionEnabled)
	}
	if u.FallbackEnabled != nil || u.ExecutiveAgentEnabled != nil {
		t.Error("unchanged flags leaked into the update")
	}
}

func TestLoadChunks(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "nice-ng133.md")
	if err := os.WriteFile(md, []byte("# Hypertension\n\nOffer labetalol first line.\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	chunks, err := loadChunks(md, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || !strings.HasPrefix(chunks[0].Source, "nice-ng133") {
		t.Errorf("chunks = %+v", chunks)
	}

	def, err := loadChunks("", "")
	if err != nil || len(def) == 0 {
		t.Fatalf("default corpus = %d chunks, %v", len(def), err)
	}

	if _, err := loadChunks(filepath.Join(dir, "corpus.txt"), ""); err == nil {
		t.Error("missing file accepted")
	}
}

func TestBuildAppWiresInMemoryStack(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Disable = true
	cfg.Store.Backend = "memory"
	cfg.Local.Host = "http://127.0.0.1:1"
	// Token budgeting loads BPE ranks over the network.
	cfg.Retrieval.TokenBudget = 0

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, appOptions{withEngine: true})
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close(ctx)

	if a.runner == nil || a.engine == nil || a.cases == nil {
		t.Fatal("engine, runner and case store should be wired")
	}
	n, err := a.retrieval.store.Count(ctx)
	if err != nil || n == 0 {
		t.Fatalf("guideline store seeded with %d chunks, %v", n, err)
	}
	if got := a.topology.Snapshot().Mode; got != topology.Hybrid {
		t.Errorf("mode = %s", got)
	}
	if len(a.middlewares()) < 6 {
		t.Errorf("middleware chain has %d entries", len(a.middlewares()))
	}
}
