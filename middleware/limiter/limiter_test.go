package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

func pass(*middleware.Context) error { return nil }

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		limiter := NewRejectingLimiter(1, 2)
		ctx := middleware.NewContext(context.Background())

		if err := limiter.Execute(ctx, pass); err != nil {
			t.Errorf("first request failed: %v", err)
		}
		if err := limiter.Execute(ctx, pass); err != nil {
			t.Errorf("second request failed: %v", err)
		}
	})

	t.Run("rejects requests exceeding burst", func(t *testing.T) {
		limiter := NewRejectingLimiter(0.001, 1)
		ctx := middleware.NewContext(context.Background())

		_ = limiter.Execute(ctx, pass)
		err := limiter.Execute(ctx, pass)
		if !errors.Is(err, ErrRateLimitExceeded) {
			t.Errorf("expected ErrRateLimitExceeded, got %v", err)
		}
	})

	t.Run("waiting limiter respects context deadline", func(t *testing.T) {
		limiter := NewRateLimiter(0.001, 1)
		bg := middleware.NewContext(context.Background())
		_ = limiter.Execute(bg, pass)

		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		called := false
		err := limiter.Execute(middleware.NewContext(cctx), func(*middleware.Context) error {
			called = true
			return nil
		})
		if !errors.Is(err, ErrRateLimitExceeded) {
			t.Errorf("expected ErrRateLimitExceeded, got %v", err)
		}
		if called {
			t.Error("next must not run when no token is available")
		}
	})

	t.Run("waiting limiter eventually passes", func(t *testing.T) {
		limiter := NewRateLimiter(1000, 1)
		ctx := middleware.NewContext(context.Background())
		for i := 0; i < 3; i++ {
			if err := limiter.Execute(ctx, pass); err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
		}
	})
}
