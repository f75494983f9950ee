package metrics

import (
	"errors"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// Middleware records every backend attempt that passes through the chain.
type Middleware struct {
	recorder Recorder
}

// NewMiddleware wraps recorder; a nil recorder discards everything.
func NewMiddleware(recorder Recorder) *Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	return &Middleware{recorder: recorder}
}

// Name returns the middleware name
func (m *Middleware) Name() string {
	return "Metrics"
}

// Execute times the downstream call.
func (m *Middleware) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	err := next(ctx)

	status := StatusSuccess
	if err != nil {
		status = StatusError
		if errors.Is(err, middleware.ErrRateLimitExceeded) {
			m.recorder.IncThrottle(ctx.Backend)
		}
	}
	m.recorder.ObserveModelCall(ctx.Backend, ctx.Step, status, time.Since(start))
	return err
}
