package chat

import (
	"context"

	"github.com/useembed/useembed/internal/catalog"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// ToolCall is a model's request to run a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one executed tool call. Error is set instead of Result on failure.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Result     any    `json:"result"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Message is a provider-neutral chat message.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Options tune a single generation pass. Zero values fall back to provider defaults.
type Options struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	Tools        []catalog.Tool
	SystemPrompt string
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the normalized outcome of one generation pass.
type Result struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
	Model        string
	Provider     string
}

// Provider adapts one LLM vendor.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts Options) (Result, error)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func finishReason(calls []ToolCall) string {
	if len(calls) > 0 {
		return FinishToolCalls
	}
	return FinishStop
}

// toolResultPayload is what a model sees for one tool result.
func toolResultPayload(r ToolResult) map[string]any {
	if r.Error != "" {
		return map[string]any{"error": r.Error}
	}
	return map[string]any{"result": r.Result}
}
