package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

func TestInitExporterSelection(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		endpoint string
		wantErr  bool
	}{
		{name: "disabled", cfg: Config{Disable: true, Exporter: "bogus"}},
		{name: "default without endpoint drops spans", cfg: Config{}},
		{name: "explicit none", cfg: Config{Exporter: ExporterNone}, endpoint: "collector:4317"},
		{name: "stderr", cfg: Config{Exporter: ExporterStderr, Writer: &bytes.Buffer{}}},
		{name: "otlp without endpoint", cfg: Config{Exporter: ExporterOTLP}, wantErr: true},
		{name: "unknown exporter", cfg: Config{Exporter: "jaeger"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.endpoint)
			tt.cfg.Logger = logging.Discard()
			shutdown, err := Init(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if err := shutdown(context.Background()); err != nil {
					t.Errorf("shutdown: %v", err)
				}
			}
		})
	}
}

func TestSamplerRatioBounds(t *testing.T) {
	for _, ratio := range []float64{0, 1, 2} {
		if got := sampler(ratio).Description(); got != sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
			t.Errorf("sampler(%v) = %s", ratio, got)
		}
	}
	if got := sampler(0.25).Description(); got == sdktrace.ParentBased(sdktrace.AlwaysSample()).Description() {
		t.Errorf("sampler(0.25) should sample by ratio, got %s", got)
	}
}

func TestEndRecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := tp.Tracer("test")

	_, ok := tracer.Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tracer.Start(context.Background(), "failed")
	End(failed, errors.New("backend down"))
	End(nil, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "backend down" {
		t.Errorf("failed span status = %v", spans[1].Status())
	}
}
