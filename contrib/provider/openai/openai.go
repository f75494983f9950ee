// Package openai talks to any OpenAI-compatible chat completions endpoint,
// including self-hosted gateways configured through BaseURL.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	Vision      bool
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig() *Config {
	return &Config{
		Model:       string(openaisdk.ChatModelGPT4oMini),
		MaxTokens:   1500,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for OpenAI
type Provider struct {
	config *Config
	client openaisdk.Client
}

// New creates a new OpenAI provider using the official SDK.
func New(config *Config, opts ...option.RequestOption) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Model == "" {
		config.Model = string(openaisdk.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	options = append(options, opts...)

	return &Provider{config: config, client: openaisdk.NewClient(options...)}
}

// Name implements agent.LLMClient.
func (p *Provider) Name() string { return "openai:" + p.config.Model }

// SupportsVision reports the configured capability.
func (p *Provider) SupportsVision() bool { return p.config.Vision }

// IsRemote is always true.
func (p *Provider) IsRemote() bool { return true }

// Ping lists models, which needs a valid key but costs no tokens.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	return err
}

// Generate implements agent.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: generate request has no messages", matrixerrors.ErrInvalidInput)
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages: convertMessages(req.Messages),
		Model:    shared.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openaisdk.Float(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(p.config.MaxTokens)
	}
	if req.JSON {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: no choices returned")
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content),
		Model:   completion.Model,
	}, nil
}

func convertMessages(msgs []*message.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case message.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		default:
			if len(msg.Images) == 0 {
				out = append(out, openaisdk.UserMessage(msg.Content))
				continue
			}
			parts := []openaisdk.ChatCompletionContentPartUnionParam{openaisdk.TextContentPart(msg.Content)}
			for _, img := range msg.Images {
				parts = append(parts, openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURI(),
				}))
			}
			out = append(out, openaisdk.UserMessage(parts))
		}
	}
	return out
}
