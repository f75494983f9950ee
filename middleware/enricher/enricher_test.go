package enricher

import (
	"errors"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

func TestContextEnricher(t *testing.T) {
	t.Run("enriches context with metadata", func(t *testing.T) {
		enricher := NewContextEnricher(func(ctx *middleware.Context) error {
			ctx.Metadata["key"] = "value"
			return nil
		})

		ctx := &middleware.Context{}
		err := enricher.Execute(ctx, func(c *middleware.Context) error { return nil })

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if ctx.Metadata["key"] != "value" {
			t.Error("metadata not enriched")
		}
	})

	t.Run("returns error if enricher fails", func(t *testing.T) {
		enricher := NewContextEnricher(func(ctx *middleware.Context) error {
			return errors.New("enrichment failed")
		})

		err := enricher.Execute(&middleware.Context{}, func(c *middleware.Context) error { return nil })
		if err == nil {
			t.Error("expected error from enricher")
		}
	})

	t.Run("handles nil enricher function", func(t *testing.T) {
		enricher := NewContextEnricher(nil)
		err := enricher.Execute(&middleware.Context{}, func(c *middleware.Context) error { return nil })
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("static tags keep earlier values", func(t *testing.T) {
		enricher := NewContextEnricher(Static(map[string]string{"tier": "edge", "site": "clinic-7"}))
		ctx := &middleware.Context{Metadata: map[string]any{"tier": "cloud"}}

		if err := enricher.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
			t.Fatal(err)
		}
		if ctx.Metadata["tier"] != "cloud" || ctx.Metadata["site"] != "clinic-7" {
			t.Errorf("metadata = %v", ctx.Metadata)
		}
	})
}
