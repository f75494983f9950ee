package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveModelCall("ollama", "risk", StatusSuccess, 200*time.Millisecond)
	rec.ObserveModelCall("ollama", "risk", StatusError, time.Second)
	rec.IncExhausted("executive")
	rec.ObserveCase("severe", "offline", true, 3*time.Second)
	rec.IncSafetyBlock("precheck")

	if got := testutil.ToFloat64(rec.modelCalls.WithLabelValues("ollama", "risk", StatusSuccess)); got != 1 {
		t.Errorf("success calls = %v", got)
	}
	if got := testutil.ToFloat64(rec.exhausted.WithLabelValues("executive")); got != 1 {
		t.Errorf("exhausted = %v", got)
	}
	if got := testutil.ToFloat64(rec.cases.WithLabelValues("severe", "offline", "true")); got != 1 {
		t.Errorf("cases = %v", got)
	}
	if got := testutil.ToFloat64(rec.safetyBlocks.WithLabelValues("precheck")); got != 1 {
		t.Errorf("safety blocks = %v", got)
	}
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	// Two recorders must not collide when given their own registries.
	_ = NewPrometheusRecorder(prometheus.NewRegistry())
	_ = NewPrometheusRecorder(prometheus.NewRegistry())
}

type countingRecorder struct {
	NoopRecorder
	calls    []string
	throttle int
}

func (c *countingRecorder) ObserveModelCall(backend, step, status string, _ time.Duration) {
	c.calls = append(c.calls, fmt.Sprintf("%s/%s/%s", backend, step, status))
}

func (c *countingRecorder) IncThrottle(string) { c.throttle++ }

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCall     string
		wantThrottle int
	}{
		{name: "success", err: nil, wantCall: "tgi/executive/success"},
		{name: "failure", err: errors.New("503"), wantCall: "tgi/executive/error"},
		{name: "throttled", err: fmt.Errorf("wrap: %w", middleware.ErrRateLimitExceeded), wantCall: "tgi/executive/error", wantThrottle: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			m := NewMiddleware(rec)
			ctx := &middleware.Context{Backend: "tgi", Step: "executive"}
			err := m.Execute(ctx, func(*middleware.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v", err)
			}
			if len(rec.calls) != 1 || rec.calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want %s", rec.calls, tt.wantCall)
			}
			if rec.throttle != tt.wantThrottle {
				t.Errorf("throttle = %d, want %d", rec.throttle, tt.wantThrottle)
			}
		})
	}
}
