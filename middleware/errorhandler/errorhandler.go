package errorhandler

import (
	"fmt"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// ErrorHandlerFunc inspects or replaces a failed call's error.
type ErrorHandlerFunc func(ctx *middleware.Context, err error) error

// ErrorHandler handles errors in the middleware chain
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares and records the final
// error on the context.
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		err = m.handler(ctx, err)
	}
	ctx.Error = err
	return err
}

// TagBackend prefixes errors with the backend name so joined multi-backend
// failures stay readable.
func TagBackend(ctx *middleware.Context, err error) error {
	if ctx.Backend == "" {
		return err
	}
	return fmt.Errorf("%s: %w", ctx.Backend, err)
}
