// Package ollama is the on-device backend. It never leaves the host and is
// the last entry in every fallback chain.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

// Config holds Ollama provider configuration
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// Vision marks the model as multimodal (llava, gemma3 and friends).
	Vision bool
}

// DefaultConfig returns the local defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://127.0.0.1:11434",
		Model:       "medgemma:4b",
		Temperature: 0.1,
		MaxTokens:   1200,
	}
}

// Provider implements agent.LLMClient on the Ollama chat API.
type Provider struct {
	config *Config
	client *api.Client
}

// New creates a provider. httpClient may be nil.
func New(config *Config, httpClient *http.Client) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: ollama model is required", matrixerrors.ErrInvalidInput)
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama url %q: %v", matrixerrors.ErrInvalidInput, config.BaseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{config: config, client: api.NewClient(parsed, httpClient)}, nil
}

// Name implements agent.LLMClient.
func (p *Provider) Name() string { return "ollama:" + p.config.Model }

// SupportsVision reports the configured capability.
func (p *Provider) SupportsVision() bool { return p.config.Vision }

// IsRemote is always false.
func (p *Provider) IsRemote() bool { return false }

// Ping checks that the daemon answers.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Heartbeat(ctx)
}

// Generate implements agent.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: generate request has no messages", matrixerrors.ErrInvalidInput)
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.config.Model,
		Messages: convertMessages(req.Messages),
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if p.config.Temperature > 0 {
		chatReq.Options["temperature"] = p.config.Temperature
	}
	if p.config.MaxTokens > 0 {
		chatReq.Options["num_predict"] = p.config.MaxTokens
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var (
		content strings.Builder
		model   string
	)
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Model != "" {
			model = resp.Model
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if model == "" {
		model = p.config.Model
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, content.String()),
		Model:   model,
	}, nil
}

func convertMessages(msgs []*message.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		am := api.Message{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			am.Images = append(am.Images, api.ImageData(img.Data))
		}
		out = append(out, am)
	}
	return out
}
