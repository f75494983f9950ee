package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable indicates every configured model backend failed
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMalformedOutput indicates a model replied with text that holds no JSON object
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrRemoteBlocked indicates the topology policy forbids the outbound call
	ErrRemoteBlocked = errors.New("remote calls blocked by topology")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
