// Package conversation stores conversations and their messages.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/useembed/useembed/internal/message"
)

var ErrNotFound = errors.New("conversation not found")

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Conversation is one end-user session's thread with the assistant.
type Conversation struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PageRequest selects one page of a listing.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize clamps the page to >= 1 and the limit to [1, MaxPageLimit], defaulting to DefaultPageLimit.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.Limit }

// Pagination describes a returned page.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(p PageRequest, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// ListFilter narrows a conversation listing.
type ListFilter struct {
	UserID string
	PageRequest
}

// Store persists conversations and their append-only messages.
type Store interface {
	// GetOrCreate returns the tenant's active conversation for the session, creating it on first use.
	GetOrCreate(ctx context.Context, tenantID, sessionID, userID string) (Conversation, error)
	GetByID(ctx context.Context, tenantID, id string) (Conversation, error)
	// AddMessage appends a message and bumps the conversation's count and last-message time.
	AddMessage(ctx context.Context, in message.Input) (message.Message, error)
	// RecentMessages returns the latest limit messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]message.Message, error)
	UpdateTitle(ctx context.Context, tenantID, conversationID, title string) error
	List(ctx context.Context, tenantID string, filter ListFilter) ([]Conversation, Pagination, error)
	// Messages pages through a conversation oldest first.
	Messages(ctx context.Context, tenantID, conversationID string, page PageRequest) ([]message.Message, Pagination, error)
	Delete(ctx context.Context, tenantID, id string) error
}
