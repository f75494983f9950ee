// Package modelclient turns a prioritised list of text-generation backends
// into one call that always returns a parsed result.
package modelclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/agent"
	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/metrics"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/telemetry"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/structured"
)

// Request is one structured-generation call.
type Request struct {
	// Step and CaseID label logs, metrics and spans.
	Step   string
	CaseID string

	System string
	Prompt string

	// Image, when set, restricts the call to vision-capable backends.
	Image *message.Image

	// AllowRemote permits backends that leave the device.
	AllowRemote bool
}

// Result is the outcome of Generate. OK is false only when every eligible
// backend failed; Data is then an empty, non-nil map.
type Result struct {
	Data    map[string]any
	OK      bool
	Backend string
	Model   string
	Raw     string
	// Remote is set when the answering backend runs off the device.
	Remote bool
	Err    error
}

// Generator is what pipeline steps depend on.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// Client tries backends in priority order, retrying each with backoff.
type Client struct {
	backends    []agent.LLMClient
	retry       RetryPolicy
	callTimeout time.Duration
	jsonMode    bool
	chain       *middleware.MiddlewareChain
	recorder    metrics.Recorder
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the per-backend retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p.normalized() }
}

// WithCallTimeout bounds each individual attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithMiddleware appends interceptors around every attempt.
func WithMiddleware(ms ...middleware.Middleware) Option {
	return func(c *Client) {
		for _, m := range ms {
			c.chain.Add(m)
		}
	}
}

// WithRecorder records exhausted chains.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithJSONMode asks backends to constrain output to JSON when they can.
func WithJSONMode(on bool) Option {
	return func(c *Client) { c.jsonMode = on }
}

// New builds a client over backends, highest priority first.
func New(backends []agent.LLMClient, opts ...Option) *Client {
	c := &Client{
		backends:    append([]agent.LLMClient(nil), backends...),
		retry:       DefaultRetryPolicy(),
		callTimeout: 60 * time.Second,
		jsonMode:    true,
		chain:       middleware.NewChain(),
		recorder:    metrics.Nop(),
		logger:      logging.WithComponent("modelclient"),
		tracer:      telemetry.Tracer("modelclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backends lists the configured backend names in priority order.
func (c *Client) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		names = append(names, b.Name())
	}
	return names
}

// Generate never returns a Go error: failures are reported through
// Result.OK and Result.Err, which wraps errors.ErrModelUnavailable.
func (c *Client) Generate(ctx context.Context, req Request) Result {
	ctx, span := c.tracer.Start(ctx, "modelclient.generate", trace.WithAttributes(
		attribute.String("matrix.step", req.Step),
		attribute.String("matrix.case_id", req.CaseID),
		attribute.Bool("matrix.image", req.Image != nil),
		attribute.Bool("matrix.allow_remote", req.AllowRemote),
	))

	candidates, skipped := c.eligible(req)
	var errs []error
	if len(candidates) == 0 {
		errs = append(errs, fmt.Errorf("no eligible backend (%d skipped)", skipped))
		if skipped > 0 && !req.AllowRemote {
			errs = append(errs, matrixerrors.ErrRemoteBlocked)
		}
	}

	for _, b := range candidates {
		res, err := c.tryBackend(ctx, b, req)
		if err == nil {
			span.SetAttributes(attribute.String("matrix.backend", res.Backend))
			telemetry.End(span, nil)
			return res
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("backend exhausted, falling through",
			"backend", b.Name(), "step", req.Step, "case_id", req.CaseID, "error", err)
	}

	err := fmt.Errorf("%w: %w", matrixerrors.ErrModelUnavailable, stderrors.Join(errs...))
	c.recorder.IncExhausted(req.Step)
	telemetry.End(span, err)
	return Result{Data: map[string]any{}, OK: false, Err: err}
}

func (c *Client) eligible(req Request) ([]agent.LLMClient, int) {
	out := make([]agent.LLMClient, 0, len(c.backends))
	skipped := 0
	for _, b := range c.backends {
		if req.Image != nil && !agent.SupportsVision(b) {
			skipped++
			continue
		}
		if !req.AllowRemote && agent.IsRemote(b) {
			skipped++
			continue
		}
		out = append(out, b)
	}
	return out, skipped
}

func (c *Client) tryBackend(ctx context.Context, b agent.LLMClient, req Request) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, c.retry.Delay(attempt)); err != nil {
				return Result{}, stderrors.Join(lastErr, err)
			}
		}

		res, err := c.attempt(ctx, b, req, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || stderrors.Is(err, middleware.ErrInvalidInput) {
			break
		}
	}
	return Result{}, lastErr
}

func (c *Client) attempt(ctx context.Context, b agent.LLMClient, req Request, attempt int) (Result, error) {
	msgs := make([]*message.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, message.NewMessage(message.RoleSystem, req.System))
	}
	if req.Image != nil {
		msgs = append(msgs, message.NewImageMessage(req.Prompt, *req.Image))
	} else {
		msgs = append(msgs, message.NewMessage(message.RoleUser, req.Prompt))
	}

	mwCtx := middleware.NewContext(ctx)
	mwCtx.Backend = b.Name()
	mwCtx.Step = req.Step
	mwCtx.CaseID = req.CaseID
	mwCtx.Attempt = attempt
	mwCtx.Input = req.Prompt
	mwCtx.Messages = msgs

	var model string
	err := c.chain.Execute(mwCtx, func(mc *middleware.Context) error {
		callCtx, cancel := context.WithTimeout(mc.Context(), c.callTimeout)
		defer cancel()

		resp, err := b.Generate(callCtx, &agent.GenerateRequest{Messages: mc.Messages, JSON: c.jsonMode})
		if err != nil {
			return err
		}
		if resp == nil || resp.Message == nil {
			return middleware.ErrEmptyResponse
		}
		mc.Response = resp.Message
		model = resp.Model
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s attempt %d: %w", b.Name(), attempt, err)
	}

	raw := mwCtx.Response.Content
	data, ok := structured.Parse(raw)
	if !ok {
		return Result{}, fmt.Errorf("%s attempt %d: %w", b.Name(), attempt, matrixerrors.ErrMalformedOutput)
	}
	return Result{Data: data, OK: true, Backend: b.Name(), Model: model, Raw: raw, Remote: agent.IsRemote(b)}, nil
}
