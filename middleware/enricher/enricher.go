package enricher

import (
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// EnricherFunc enriches the context
type EnricherFunc func(*middleware.Context) error

// ContextEnricher adds additional data to the middleware context
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// Name returns the middleware name
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute enriches the context
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.enricher != nil {
		if ctx.Metadata == nil {
			ctx.Metadata = make(map[string]any)
		}
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}

// Static copies fixed tags (deployment tier, site id) into every call's
// metadata without overwriting keys set earlier in the chain.
func Static(tags map[string]string) EnricherFunc {
	return func(ctx *middleware.Context) error {
		for k, v := range tags {
			if _, exists := ctx.Metadata[k]; !exists {
				ctx.Metadata[k] = v
			}
		}
		return nil
	}
}
