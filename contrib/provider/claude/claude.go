// Package claude is a remote backend on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       defaultModel,
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for Claude
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK.
func New(config *Config, opts ...option.RequestOption) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	options = append(options, opts...)

	return &Provider{config: config, client: anthropic.NewClient(options...)}
}

// Name implements agent.LLMClient.
func (p *Provider) Name() string { return "claude:" + p.config.Model }

// SupportsVision is always true; every current Claude model accepts images.
func (p *Provider) SupportsVision() bool { return true }

// IsRemote is always true.
func (p *Provider) IsRemote() bool { return true }

// Ping lists models.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	return err
}

// Generate implements agent.LLMClient. Claude has no JSON response mode, so
// req.JSON is left to the prompt.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: generate request has no messages", matrixerrors.ErrInvalidInput)
	}

	system, rest := message.SplitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  convertMessages(rest),
		MaxTokens: p.config.MaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, text.String()),
		Model:   string(resp.Model),
	}, nil
}

func convertMessages(msgs []*message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Images)+1)
		for _, img := range msg.Images {
			mime := img.MIMEType
			if mime == "" {
				mime = "image/jpeg"
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(mime, img.Base64()))
		}
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out
}
