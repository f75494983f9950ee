package middleware

import "errors"

var (
	// ErrRateLimitExceeded indicates rate limit has been exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyResponse indicates the backend returned no content
	ErrEmptyResponse = errors.New("empty backend response")
)
