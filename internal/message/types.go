// Package message defines persisted conversation messages.
package message

import (
	"strings"
	"time"

	"github.com/useembed/useembed/internal/chat"
)

// Message is one immutable entry of a conversation.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           chat.Role         `json:"role"`
	Content        string            `json:"content"`
	ToolCalls      []chat.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults    []chat.ToolResult `json:"tool_results,omitempty"`
	Tokens         *chat.Usage       `json:"tokens,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Input is the input for appending a message to a conversation.
type Input struct {
	ConversationID string
	Role           chat.Role
	Content        string
	ToolCalls      []chat.ToolCall
	ToolResults    []chat.ToolResult
	Tokens         *chat.Usage
}

// ToChat replays persisted messages as model history. Only user and assistant text is
// replayed; tool traffic of earlier cycles stays in the audit record.
func ToChat(msgs []Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, chat.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
