package logger

import (
	"log/slog"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// CallLogger logs each backend call with its outcome and latency. Prompt and
// reply text are logged only at debug level, and only their length.
type CallLogger struct {
	logger *slog.Logger
}

// NewCallLogger creates a call logging middleware
func NewCallLogger(logger *slog.Logger) *CallLogger {
	return &CallLogger{logger: logger}
}

// Name returns the middleware name
func (m *CallLogger) Name() string {
	return "CallLogger"
}

// Execute logs the call
func (m *CallLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.logger == nil {
		return next(ctx)
	}

	attrs := []any{
		"backend", ctx.Backend,
		"step", ctx.Step,
		"case_id", ctx.CaseID,
		"attempt", ctx.Attempt,
	}
	m.logger.Debug("model call started", append(attrs, "prompt_chars", len(ctx.Input))...)

	start := time.Now()
	err := next(ctx)
	attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())

	switch {
	case err != nil:
		m.logger.Warn("model call failed", append(attrs, "error", err)...)
	case ctx.Response != nil:
		m.logger.Debug("model call completed", append(attrs, "reply_chars", len(ctx.Response.Content))...)
	}
	return err
}
