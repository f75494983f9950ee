package modelclient

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy controls how often one backend is retried before the client
// falls through to the next.
type RetryPolicy struct {
	MaxAttempts  int           // including the first attempt
	InitialDelay time.Duration // wait before the second attempt
	MaxDelay     time.Duration // cap for any single wait; zero means no cap
	Factor       float64       // growth per attempt
}

// DefaultRetryPolicy makes three attempts waiting 2s then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// Delay returns the wait before the given 1-based attempt. The first attempt
// never waits.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	p = p.normalized()
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-2)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
