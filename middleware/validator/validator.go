package validator

import (
	"fmt"
	"strings"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

// ValidatorFunc validates input
type ValidatorFunc func(string) error

// FilterFunc transforms or filters responses
type FilterFunc func(*message.Message) error

// InputValidator validates and cleans input
type InputValidator struct {
	validator ValidatorFunc
}

// NewInputValidator creates an input validation middleware
func NewInputValidator(validator ValidatorFunc) *InputValidator {
	return &InputValidator{validator: validator}
}

// Name returns the middleware name
func (m *InputValidator) Name() string {
	return "InputValidator"
}

// Execute validates the input
func (m *InputValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.validator != nil {
		if err := m.validator(ctx.Input); err != nil {
			return err
		}
	}
	return next(ctx)
}

// ResponseFilter filters or transforms the response
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if m.filter == nil {
		return nil
	}
	if ctx.Response == nil {
		return middleware.ErrEmptyResponse
	}
	return m.filter(ctx.Response)
}

// MaxPromptChars rejects prompts longer than limit characters.
func MaxPromptChars(limit int) ValidatorFunc {
	return func(input string) error {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("%w: empty prompt", middleware.ErrInvalidInput)
		}
		if limit > 0 && len(input) > limit {
			return fmt.Errorf("%w: prompt of %d chars exceeds %d", middleware.ErrInvalidInput, len(input), limit)
		}
		return nil
	}
}

// NonEmptyReply rejects blank model replies so they count as failed attempts.
func NonEmptyReply(msg *message.Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return middleware.ErrEmptyResponse
	}
	return nil
}
