package limiter

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// ErrRateLimitExceeded indicates rate limit has been exceeded
var ErrRateLimitExceeded = middleware.ErrRateLimitExceeded

// RateLimiter middleware bounds the rate of backend calls with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
	wait    bool
}

// NewRateLimiter allows perSecond calls with the given burst. Calls wait for a
// token, bounded by the call context.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst), wait: true}
}

// NewRejectingLimiter fails immediately instead of waiting for a token.
func NewRejectingLimiter(perSecond float64, burst int) *RateLimiter {
	l := NewRateLimiter(perSecond, burst)
	l.wait = false
	return l
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute checks rate limit
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if !m.wait {
		if !m.limiter.Allow() {
			return ErrRateLimitExceeded
		}
		return next(ctx)
	}
	if err := m.limiter.Wait(ctx.Context()); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	}
	return next(ctx)
}
