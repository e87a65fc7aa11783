package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single caller-supplied history entry. The caller is
// the source of truth for history; the gateway keeps no conversation state
// between requests.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationParams selects the model and sampling settings for the
// text-generation provider.
type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}
