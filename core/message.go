package core

// Role identifies the author of a conversation message. The set is closed;
// provider adapters map unknown roles to user.
type Role string

const (
	// RoleUser marks input authored by the human user.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated output.
	RoleAssistant Role = "assistant"
	// RoleSystem marks the context preamble injected ahead of the conversation.
	RoleSystem Role = "system"
	// RoleTool marks tool/function results embedded in the conversation.
	RoleTool Role = "tool"
)

// ValidRole reports whether r is one of the four known conversation roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one role-attributed utterance inside a conversation record.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage is a convenience constructor for user-authored text.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage is a convenience constructor for model output.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage is a convenience constructor for the context preamble.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
