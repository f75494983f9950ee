package tgi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

func TestRenderPrompt(t *testing.T) {
	got := RenderPrompt([]*message.Message{
		message.NewMessage(message.RoleSystem, "sys"),
		message.NewMessage(message.RoleUser, "case"),
	})
	want := "<start_of_turn>system\nsys<end_of_turn>\n<start_of_turn>user\ncase<end_of_turn>\n<start_of_turn>model\n"
	if got != want {
		t.Fatalf("RenderPrompt() = %q", got)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
		wantErr bool
	}{
		{name: "list reply", status: 200, reply: `[{"generated_text":"{\"a\":1}"}]`, want: `{"a":1}`},
		{name: "object reply", status: 200, reply: `{"generated_text":"{\"b\":2}"}`, want: `{"b":2}`},
		{name: "empty list", status: 200, reply: `[]`, wantErr: true},
		{name: "server error", status: 503, reply: `{"error":"loading"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got generateRequest
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			p, err := New(&Config{Endpoint: srv.URL + "/", Token: "hf_x"}, srv.Client())
			if err != nil {
				t.Fatal(err)
			}
			resp, err := p.Generate(context.Background(), &agent.GenerateRequest{
				Messages: []*message.Message{message.NewMessage(message.RoleUser, "hi")},
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if resp.Text() != tt.want {
				t.Errorf("Text() = %q, want %q", resp.Text(), tt.want)
			}
			if auth != "Bearer hf_x" {
				t.Errorf("Authorization = %q", auth)
			}
			if got.Parameters.MaxNewTokens != 1500 || got.Parameters.Temperature != 0.05 || got.Parameters.ReturnFullText {
				t.Errorf("parameters = %+v", got.Parameters)
			}
		})
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, _ := New(&Config{Endpoint: srv.URL}, srv.Client())
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(&Config{}, nil); !errors.Is(err, matrixerrors.ErrInvalidInput) {
		t.Fatalf("error = %v", err)
	}
}
