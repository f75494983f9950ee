// Package gemini is a remote backend on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

const defaultModel = "gemini-2.5-flash"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int32
	Temperature float32
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       defaultModel,
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for Google Gemini. The SDK client is
// created on first use.
type Provider struct {
	config *Config

	mu     sync.Mutex
	client *genai.Client
}

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	return &Provider{config: config}
}

// Name implements agent.LLMClient.
func (p *Provider) Name() string { return "gemini:" + p.config.Model }

// SupportsVision is always true.
func (p *Provider) SupportsVision() bool { return true }

// IsRemote is always true.
func (p *Provider) IsRemote() bool { return true }

// Ping fetches the configured model's metadata.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.sdk(ctx)
	if err != nil {
		return err
	}
	_, err = client.Models.Get(ctx, p.config.Model, nil)
	return err
}

func (p *Provider) sdk(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     p.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.config.HTTPClient,
	}
	if p.config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

// Generate implements agent.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: generate request has no messages", matrixerrors.ErrInvalidInput)
	}
	client, err := p.sdk(ctx)
	if err != nil {
		return nil, err
	}

	system, rest := message.SplitSystem(req.Messages)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: p.config.MaxTokens,
	}
	if p.config.Temperature > 0 {
		config.Temperature = genai.Ptr(p.config.Temperature)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	result, err := client.Models.GenerateContent(ctx, p.config.Model, convertMessages(rest), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("gemini generate: empty response")
	}

	model := result.ModelVersion
	if model == "" {
		model = p.config.Model
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, result.Text()),
		Model:   model,
	}, nil
}

func convertMessages(msgs []*message.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		var role genai.Role = genai.RoleUser
		if msg.Role == message.RoleAssistant {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			mime := img.MIMEType
			if mime == "" {
				mime = "image/jpeg"
			}
			parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
		}
		parts = append(parts, genai.NewPartFromText(msg.Content))
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}
