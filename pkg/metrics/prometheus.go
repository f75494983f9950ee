package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	exhausted     *prometheus.CounterVec
	throttle      *prometheus.CounterVec
	cases         *prometheus.CounterVec
	caseDuration  *prometheus.HistogramVec
	safetyBlocks  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		modelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_model_calls_total",
				Help: "Backend call attempts by backend, step and status",
			},
			[]string{"backend", "step", "status"},
		),
		modelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matrix_model_call_duration_seconds",
				Help:    "Duration of backend call attempts in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "step"},
		),
		exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_model_exhausted_total",
				Help: "Calls where every configured backend failed",
			},
			[]string{"step"},
		),
		throttle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_model_throttle_total",
				Help: "Backend calls rejected by the rate limiter",
			},
			[]string{"backend"},
		),
		cases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_cases_total",
				Help: "Completed cases by risk level, escalation mode and escalation decision",
			},
			[]string{"risk_level", "mode", "escalated"},
		),
		caseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matrix_case_duration_seconds",
				Help:    "End-to-end case duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"escalated"},
		),
		safetyBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_safety_blocks_total",
				Help: "Plans blocked by the safety heuristics",
			},
			[]string{"stage"},
		),
	}
}

// ObserveModelCall records one backend attempt.
func (p *PrometheusRecorder) ObserveModelCall(backend, step, status string, duration time.Duration) {
	p.modelCalls.WithLabelValues(backend, step, status).Inc()
	p.modelDuration.WithLabelValues(backend, step).Observe(duration.Seconds())
}

// IncExhausted counts calls where every backend failed.
func (p *PrometheusRecorder) IncExhausted(step string) {
	p.exhausted.WithLabelValues(step).Inc()
}

// IncThrottle counts rate limiter rejections.
func (p *PrometheusRecorder) IncThrottle(backend string) {
	p.throttle.WithLabelValues(backend).Inc()
}

// ObserveCase records a finished case.
func (p *PrometheusRecorder) ObserveCase(riskLevel, mode string, escalated bool, duration time.Duration) {
	esc := strconv.FormatBool(escalated)
	p.cases.WithLabelValues(riskLevel, mode, esc).Inc()
	p.caseDuration.WithLabelValues(esc).Observe(duration.Seconds())
}

// IncSafetyBlock counts plans blocked by the heuristic checker.
func (p *PrometheusRecorder) IncSafetyBlock(stage string) {
	p.safetyBlocks.WithLabelValues(stage).Inc()
}
