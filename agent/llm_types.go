package agent

import "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"

// GenerateRequest bundles inputs for one model invocation.
type GenerateRequest struct {
	Messages []*message.Message
	// JSON asks the backend to constrain output to a JSON object when it
	// supports such a mode.
	JSON bool
}

// GenerateResponse captures the backend reply.
type GenerateResponse struct {
	Message *message.Message
	Model   string
}

// Text returns the reply content or "" for a nil response.
func (r *GenerateResponse) Text() string {
	if r == nil || r.Message == nil {
		return ""
	}
	return r.Message.Content
}
