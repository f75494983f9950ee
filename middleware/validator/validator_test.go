package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/middleware"
)

func TestInputValidator(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantErr  bool
		executed bool
	}{
		{name: "valid input passes through", input: "BP 150/95", wantErr: false, executed: true},
		{name: "empty input rejected", input: "  ", wantErr: true, executed: false},
		{name: "oversized input rejected", input: strings.Repeat("x", 101), wantErr: true, executed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewInputValidator(MaxPromptChars(100))
			executed := false
			err := v.Execute(&middleware.Context{Input: tt.input}, func(c *middleware.Context) error {
				executed = true
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, middleware.ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidInput: %v", err)
			}
			if executed != tt.executed {
				t.Errorf("executed = %v, want %v", executed, tt.executed)
			}
		})
	}
}

func TestResponseFilter(t *testing.T) {
	tests := []struct {
		name    string
		reply   *message.Message
		wantErr error
	}{
		{name: "content passes", reply: message.NewMessage(message.RoleAssistant, "{}"), wantErr: nil},
		{name: "blank content", reply: message.NewMessage(message.RoleAssistant, "\n"), wantErr: middleware.ErrEmptyResponse},
		{name: "missing response", reply: nil, wantErr: middleware.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewResponseFilter(NonEmptyReply)
			err := f.Execute(&middleware.Context{}, func(c *middleware.Context) error {
				c.Response = tt.reply
				return nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("upstream error wins", func(t *testing.T) {
		boom := errors.New("timeout")
		f := NewResponseFilter(NonEmptyReply)
		err := f.Execute(&middleware.Context{}, func(c *middleware.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("error = %v", err)
		}
	})
}
