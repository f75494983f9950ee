package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"risk_score\": 42}"}]}, "finishReason": "STOP"}],
			"modelVersion": "gemini-2.5-flash-001"
		}`))
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client(), MaxTokens: 128})
	resp, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "assess risk"),
			message.NewImageMessage("photo attached", message.Image{Data: []byte("jpeg"), MIMEType: "image/jpeg"}),
		},
		JSON: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != `{"risk_score": 42}` || resp.Model != "gemini-2.5-flash-001" {
		t.Fatalf("unexpected response %+v", resp)
	}

	cfg, _ := body["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", body["generationConfig"])
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("system instruction missing")
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %v", body["contents"])
	}
	parts, _ := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %v", parts)
	}
	inline, _ := parts[0].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/jpeg" || inline["data"] != "anBlZw==" {
		t.Errorf("inline data = %v", parts[0])
	}
}

func TestCapabilities(t *testing.T) {
	p := New(nil)
	if p.Name() != "gemini:gemini-2.5-flash" {
		t.Errorf("Name() = %q", p.Name())
	}
	if !agent.IsRemote(p) || !agent.SupportsVision(p) {
		t.Error("gemini should be a remote vision backend")
	}
}
