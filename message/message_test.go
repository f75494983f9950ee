package message

import (
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "BP 165/110")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}
	if msg.Content != "BP 165/110" {
		t.Errorf("Expected content 'BP 165/110', got '%s'", msg.Content)
	}
	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
	if other := NewMessage(RoleUser, "x"); other.ID == msg.ID {
		t.Error("Expected unique IDs")
	}
}

func TestImageMessage(t *testing.T) {
	msg := NewImageMessage("describe", Image{Data: []byte("abc"), MIMEType: "image/png"})
	if !HasImages([]*Message{NewMessage(RoleSystem, "s"), msg}) {
		t.Fatal("HasImages should detect the attachment")
	}
	if got := msg.Images[0].DataURI(); got != "data:image/png;base64,YWJj" {
		t.Errorf("DataURI() = %q", got)
	}
	if got := (Image{Data: []byte("abc")}).DataURI(); !strings.HasPrefix(got, "data:image/jpeg;") {
		t.Errorf("default mime not applied: %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewImageMessage("x", Image{Data: []byte{1, 2, 3}})
	orig.Metadata["step"] = "risk"

	cloned := Clone(orig)
	cloned.Metadata["step"] = "vision"
	cloned.Images[0].Data[0] = 9

	if orig.Metadata["step"] != "risk" {
		t.Error("metadata shared between clone and original")
	}
	if orig.Images[0].Data[0] != 1 {
		t.Error("image bytes shared between clone and original")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]*Message{
		NewMessage(RoleSystem, "You are a triage assistant."),
		NewMessage(RoleUser, "case"),
		NewMessage(RoleSystem, "Return JSON."),
	})
	if system != "You are a triage assistant.\n\nReturn JSON." {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Role != RoleUser {
		t.Errorf("rest = %+v", rest)
	}
}
