package commands

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/config"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/provider/claude"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/provider/gemini"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/provider/ollama"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/provider/openai"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/provider/tgi"
)

// backendSet groups the backend lists each generator is built from.
type backendSet struct {
	local       agent.LLMClient
	localVision agent.LLMClient
	vision      []agent.LLMClient
	executive   []agent.LLMClient
}

// all returns every distinct backend, for health registration.
func (b backendSet) all() []agent.LLMClient {
	seen := make(map[string]struct{})
	var out []agent.LLMClient
	add := func(c agent.LLMClient) {
		if c == nil {
			return
		}
		if _, ok := seen[c.Name()]; ok {
			return
		}
		seen[c.Name()] = struct{}{}
		out = append(out, c)
	}
	add(b.local)
	add(b.localVision)
	for _, c := range b.vision {
		add(c)
	}
	for _, c := range b.executive {
		add(c)
	}
	return out
}

func newBackends(cfg *config.Config) (backendSet, error) {
	var set backendSet
	httpClient := &http.Client{Timeout: cfg.Local.Timeout}

	local, err := ollama.New(&ollama.Config{
		BaseURL:     cfg.Local.Host,
		Model:       cfg.Local.Model,
		Temperature: cfg.Local.Temperature,
		MaxTokens:   cfg.Local.MaxTokens,
		Vision:      cfg.Local.VisionModel == "" || cfg.Local.VisionModel == cfg.Local.Model,
	}, httpClient)
	if err != nil {
		return set, fmt.Errorf("local backend: %w", err)
	}
	set.local = local
	set.localVision = local

	if cfg.Local.VisionModel != "" && cfg.Local.VisionModel != cfg.Local.Model {
		lv, err := ollama.New(&ollama.Config{
			BaseURL:     cfg.Local.Host,
			Model:       cfg.Local.VisionModel,
			Temperature: cfg.Local.Temperature,
			MaxTokens:   cfg.Local.MaxTokens,
			Vision:      true,
		}, httpClient)
		if err != nil {
			return set, fmt.Errorf("local vision backend: %w", err)
		}
		set.localVision = lv
	}

	for i, rc := range cfg.Vision {
		b, err := newRemoteBackend(rc)
		if err != nil {
			return set, fmt.Errorf("vision[%d]: %w", i, err)
		}
		set.vision = append(set.vision, b)
	}
	for i, rc := range cfg.Executive {
		b, err := newRemoteBackend(rc)
		if err != nil {
			return set, fmt.Errorf("executive[%d]: %w", i, err)
		}
		set.executive = append(set.executive, b)
	}
	return set, nil
}

func newRemoteBackend(rc config.RemoteModelConfig) (agent.LLMClient, error) {
	switch strings.ToLower(rc.Provider) {
	case "tgi":
		return tgi.New(&tgi.Config{
			Endpoint:    rc.BaseURL,
			Token:       rc.APIKey,
			Model:       rc.Model,
			MaxTokens:   rc.MaxTokens,
			Temperature: rc.Temperature,
			Timeout:     rc.Timeout,
		}, nil)
	case "openai":
		return openai.New(&openai.Config{
			APIKey:      rc.APIKey,
			BaseURL:     rc.BaseURL,
			Model:       rc.Model,
			MaxTokens:   int64(rc.MaxTokens),
			Temperature: rc.Temperature,
			Vision:      rc.Vision,
		}), nil
	case "claude":
		return claude.New(&claude.Config{
			APIKey:      rc.APIKey,
			BaseURL:     rc.BaseURL,
			Model:       rc.Model,
			MaxTokens:   int64(rc.MaxTokens),
			Temperature: rc.Temperature,
		}), nil
	case "gemini":
		var hc *http.Client
		if rc.Timeout > 0 {
			hc = &http.Client{Timeout: rc.Timeout}
		}
		return gemini.New(&gemini.Config{
			APIKey:      rc.APIKey,
			BaseURL:     rc.BaseURL,
			Model:       rc.Model,
			MaxTokens:   int32(rc.MaxTokens),
			Temperature: float32(rc.Temperature),
			HTTPClient:  hc,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", rc.Provider)
	}
}

// callTimeout is the longest per-attempt timeout across the configured
// backends, so slow cloud models are not cut off by the local default.
func callTimeout(cfg *config.Config) time.Duration {
	d := cfg.Local.Timeout
	for _, list := range [][]config.RemoteModelConfig{cfg.Vision, cfg.Executive} {
		for _, rc := range list {
			if rc.Timeout > d {
				d = rc.Timeout
			}
		}
	}
	return d
}
