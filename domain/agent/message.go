// Package agent provides the core domain model for the repository agent loop.
package agent

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"    // Instructions and tool catalog
	RoleUser      Role = "user"      // Task framing, refresh messages and observations
	RoleAssistant Role = "assistant" // Raw model output
)

// IsValid returns true if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single turn of the conversation history.
// Order in the history is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CloneHistory returns a copy of the history slice.
func CloneHistory(history []Message) []Message {
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
