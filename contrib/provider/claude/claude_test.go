package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

func TestGenerate(t *testing.T) {
	var body struct {
		System   []map[string]any `json:"system"`
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "{\"plan_safe\": true}"}],
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "k", BaseURL: srv.URL, MaxTokens: 256},
		option.WithHTTPClient(srv.Client()), option.WithMaxRetries(0))

	resp, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "review the plan"),
			message.NewImageMessage("what do you see", message.Image{Data: []byte("jpeg")}),
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != `{"plan_safe": true}` {
		t.Fatalf("Text() = %q", resp.Text())
	}
	if resp.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("Model = %q", resp.Model)
	}
	if len(body.System) != 1 || body.System[0]["text"] != "review the plan" {
		t.Errorf("system = %v", body.System)
	}
	if body.MaxTokens != 256 {
		t.Errorf("max_tokens = %d", body.MaxTokens)
	}
	if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", body.Messages)
	}
	img := body.Messages[0].Content[0]
	src, _ := img["source"].(map[string]any)
	if img["type"] != "image" || src["media_type"] != "image/jpeg" || src["data"] != "anBlZw==" {
		t.Errorf("image block = %v", img)
	}
}

func TestCapabilities(t *testing.T) {
	p := New(nil)
	if !agent.IsRemote(p) || !agent.SupportsVision(p) {
		t.Error("claude should be a remote vision backend")
	}
}
