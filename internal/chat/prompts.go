package chat

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const basePrompt = `You are UseEmbed, an intelligent AI assistant embedded in a software product. 
Your role is to help users accomplish tasks by understanding their requests and executing the appropriate actions through available APIs.

Guidelines:
1. Be helpful, concise, and accurate
2. When users ask to perform actions, use the available tools/functions
3. If you need more information to complete a task, ask clarifying questions
4. Always explain what actions you're taking
5. Handle errors gracefully and suggest alternatives
6. Respect user privacy and data security`

// SystemPrompt returns the base instructions with the tenant's custom prompt appended.
func SystemPrompt(custom string) string {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return basePrompt
	}
	return basePrompt + "\n\n" + custom
}

// TitlePrompt asks for a short conversation title.
func TitlePrompt(firstMessage string) string {
	return fmt.Sprintf("Generate a short title (max 6 words) for a conversation that starts with: \"%s\". Reply with just the title, no quotes or extra text.", firstMessage)
}

var toolCallSeq atomic.Uint64

// NewToolCallID synthesizes an id for providers that do not return one.
func NewToolCallID() string {
	return fmt.Sprintf("call_%d_%s%d", time.Now().UnixNano(), uuid.NewString()[:8], toolCallSeq.Add(1))
}
