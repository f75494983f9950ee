// Package middleware wraps every backend call in a chain of interceptors.
package middleware

import (
	"context"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

// Context represents one backend call as it travels the chain.
type Context struct {
	// Backend is the name of the backend being called.
	Backend string

	// Step names the pipeline step issuing the call (risk, guideline, ...).
	Step string

	// CaseID identifies the case the call belongs to.
	CaseID string

	// Attempt is the 1-based retry attempt for this backend.
	Attempt int

	// Input is the user prompt text.
	Input string

	// Messages sent to the backend.
	Messages []*message.Message

	// Response from the backend.
	Response *message.Message

	// Error from execution
	Error error

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context) *Context {
	return &Context{
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// WithContext replaces the underlying context.Context, e.g. to attach a
// deadline or span.
func (c *Context) WithContext(ctx context.Context) {
	c.context = ctx
}

// Middleware defines the interface for middleware components
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic. Returning an error stops the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	chain := &MiddlewareChain{}
	for _, m := range middlewares {
		chain.Add(m)
	}
	return chain
}

// Add appends a middleware to the chain; nil values are ignored.
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	if m != nil {
		c.middlewares = append(c.middlewares, m)
	}
	return c
}

// List returns a copy of the registered middlewares.
func (c *MiddlewareChain) List() []Middleware {
	return append([]Middleware(nil), c.middlewares...)
}

// Len returns the number of middlewares.
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	if c == nil {
		return finalHandler(ctx)
	}
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Func adapts a function into a named Middleware.
type Func struct {
	ID string
	Fn func(ctx *Context, next Handler) error
}

// Name returns the configured id.
func (f Func) Name() string { return f.ID }

// Execute calls the wrapped function.
func (f Func) Execute(ctx *Context, next Handler) error { return f.Fn(ctx, next) }
