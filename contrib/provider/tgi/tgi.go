// Package tgi calls a Hugging Face Text Generation Inference endpoint, the
// dedicated cloud host for the large Gemma model.
package tgi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

// Config holds TGI endpoint configuration.
type Config struct {
	// Endpoint is the full inference URL, e.g. https://x.endpoints.huggingface.cloud.
	Endpoint    string
	Token       string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Provider implements agent.LLMClient against the TGI generate route.
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a provider. httpClient may be nil.
func New(config *Config, httpClient *http.Client) (*Provider, error) {
	if config == nil || config.Endpoint == "" {
		return nil, fmt.Errorf("%w: tgi endpoint is required", matrixerrors.ErrInvalidInput)
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1500
	}
	if config.Temperature <= 0 {
		config.Temperature = 0.05
	}
	if config.Model == "" {
		config.Model = "gemma-27b"
	}
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Provider{config: config, client: httpClient}, nil
}

// Name implements agent.LLMClient.
func (p *Provider) Name() string { return "tgi:" + p.config.Model }

// SupportsVision is false; the endpoint takes a flat prompt.
func (p *Provider) SupportsVision() bool { return false }

// IsRemote is always true.
func (p *Provider) IsRemote() bool { return true }

type generateRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
	DoSample       bool    `json:"do_sample"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Generate implements agent.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: generate request has no messages", matrixerrors.ErrInvalidInput)
	}

	payload, err := json.Marshal(generateRequest{
		Inputs: RenderPrompt(req.Messages),
		Parameters: parameters{
			MaxNewTokens: p.config.MaxTokens,
			Temperature:  p.config.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tgi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tgi error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text, err := decodeGeneration(body)
	if err != nil {
		return nil, err
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, text),
		Model:   p.config.Model,
	}, nil
}

// Ping calls the endpoint's health route.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tgi health: status %d", resp.StatusCode)
	}
	return nil
}

// decodeGeneration accepts both the list and the single-object reply shapes.
func decodeGeneration(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []generation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("tgi returned no generations")
		}
		return list[0].GeneratedText, nil
	}
	var single generation
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return single.GeneratedText, nil
}

// RenderPrompt flattens messages into the Gemma turn template, leaving the
// model turn open.
func RenderPrompt(msgs []*message.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m == nil {
			continue
		}
		role := "user"
		switch m.Role {
		case message.RoleSystem:
			role = "system"
		case message.RoleAssistant:
			role = "model"
		}
		fmt.Fprintf(&b, "<start_of_turn>%s\n%s<end_of_turn>\n", role, m.Content)
	}
	b.WriteString("<start_of_turn>model\n")
	return b.String()
}
