// Package metrics records model-call and case outcomes.
package metrics

import (
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder defines the interface for recording triage metrics.
type Recorder interface {
	// ObserveModelCall records one backend attempt.
	ObserveModelCall(backend, step, status string, duration time.Duration)

	// IncExhausted counts calls where every backend failed.
	IncExhausted(step string)

	// IncThrottle counts rate limiter rejections.
	IncThrottle(backend string)

	// ObserveCase records a finished case.
	ObserveCase(riskLevel, mode string, escalated bool, duration time.Duration)

	// IncSafetyBlock counts plans blocked by the heuristic checker.
	IncSafetyBlock(stage string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveModelCall(_, _, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncExhausted(_ string) {}

func (n *NoopRecorder) IncThrottle(_ string) {}

func (n *NoopRecorder) ObserveCase(_, _ string, _ bool, _ time.Duration) {}

func (n *NoopRecorder) IncSafetyBlock(_ string) {}
