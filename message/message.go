// Package message defines the chat messages exchanged with model backends.
package message

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of the message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Image is an inline image attachment.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI renders the image as a data: URI.
func (i Image) DataURI() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + i.Base64()
}

// Message represents a single message in a conversation
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Images    []Image        `json:"images,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a new message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// NewImageMessage creates a user message carrying one image.
func NewImageMessage(content string, img Image) *Message {
	msg := NewMessage(RoleUser, content)
	msg.Images = []Image{img}
	return msg
}

// HasImages reports whether any message in msgs carries an image.
func HasImages(msgs []*Message) bool {
	for _, m := range msgs {
		if m != nil && len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	if msg.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cloned.Metadata[k] = v
		}
	}
	if len(msg.Images) > 0 {
		cloned.Images = make([]Image, len(msg.Images))
		for i, img := range msg.Images {
			cloned.Images[i] = Image{Data: append([]byte(nil), img.Data...), MIMEType: img.MIMEType}
		}
	}
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}

// SplitSystem separates the system instruction from the conversation, since
// several backends take it as a dedicated parameter.
func SplitSystem(msgs []*Message) (string, []*Message) {
	var system string
	rest := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
