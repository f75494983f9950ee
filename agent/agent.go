// Package agent defines the contract every text-generation backend satisfies.
package agent

import (
	"context"
)

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Name identifies the backend in logs, metrics and results.
	Name() string

	// Generate returns the raw model reply.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// VisionCapable is implemented by backends that accept image attachments.
type VisionCapable interface {
	SupportsVision() bool
}

// RemoteBackend is implemented by backends that leave the device.
type RemoteBackend interface {
	IsRemote() bool
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SupportsVision reports whether c advertises image support.
func SupportsVision(c LLMClient) bool {
	v, ok := c.(VisionCapable)
	return ok && v.SupportsVision()
}

// IsRemote reports whether c calls a service off the device. Backends that
// do not say are treated as remote.
func IsRemote(c LLMClient) bool {
	r, ok := c.(RemoteBackend)
	return !ok || r.IsRemote()
}

// Func adapts a function into a local, text-only LLMClient.
type Func struct {
	ID string
	Fn func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	// Vision and Remote override the advertised capabilities.
	Vision bool
	Remote bool
}

// Name returns the configured id.
func (f *Func) Name() string { return f.ID }

// Generate calls the wrapped function.
func (f *Func) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return f.Fn(ctx, req)
}

// SupportsVision returns f.Vision.
func (f *Func) SupportsVision() bool { return f.Vision }

// IsRemote returns f.Remote.
func (f *Func) IsRemote() bool { return f.Remote }
