package message

import (
	"testing"

	"github.com/useembed/useembed/internal/chat"
)

func TestToChatReplaysText(t *testing.T) {
	msgs := []Message{
		{Role: chat.RoleUser, Content: "where is order 42?"},
		{Role: chat.RoleAssistant, Content: "Order 42 is shipped.", ToolCalls: []chat.ToolCall{{ID: "c1", Name: "Orders_get_status"}}},
		{Role: chat.RoleTool, Content: "{}"},
		{Role: chat.RoleAssistant, Content: "  "},
		{Role: chat.RoleUser, Content: "thanks"},
	}
	got := ToChat(msgs)
	if len(got) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d: %+v", len(got), got)
	}
	if got[1].Role != chat.RoleAssistant || got[1].Content != "Order 42 is shipped." || len(got[1].ToolCalls) != 0 {
		t.Fatalf("unexpected assistant replay %+v", got[1])
	}
	if got[2].Content != "thanks" {
		t.Fatalf("unexpected order %+v", got)
	}
}
