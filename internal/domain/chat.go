package domain

// Chat message roles as used on the OpenRouter wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// orchestrator and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment carries base64-encoded file bytes sent alongside a user turn.
// Only image attachments are analyzed; everything else is ignored.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// IsImage reports whether the attachment should go through vision analysis.
func (a Attachment) IsImage() bool {
	return len(a.MimeType) >= 6 && a.MimeType[:6] == "image/"
}
