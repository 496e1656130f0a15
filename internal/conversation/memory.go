package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/useembed/useembed/internal/message"
)

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]message.Message
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*Conversation{},
		messages:      map[string][]message.Message{},
		now:           time.Now,
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, tenantID, sessionID, userID string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.TenantID == tenantID && c.SessionID == sessionID && c.IsActive {
			return *c, nil
		}
	}
	now := m.now().UTC()
	c := &Conversation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		SessionID: sessionID,
		UserID:    userID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[c.ID] = c
	return *c, nil
}

func (m *MemoryStore) GetByID(_ context.Context, tenantID, id string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok || c.TenantID != tenantID {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (m *MemoryStore) AddMessage(_ context.Context, in message.Input) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[in.ConversationID]
	if !ok {
		return message.Message{}, ErrNotFound
	}
	now := m.now().UTC()
	msg := message.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		ToolCalls:      in.ToolCalls,
		ToolResults:    in.ToolResults,
		Tokens:         in.Tokens,
		CreatedAt:      now,
	}
	m.messages[c.ID] = append(m.messages[c.ID], msg)
	c.MessageCount++
	c.LastMessageAt = &now
	c.UpdatedAt = now
	return msg, nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]message.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]message.Message{}, msgs...), nil
}

func (m *MemoryStore) UpdateTitle(_ context.Context, tenantID, conversationID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) List(_ context.Context, tenantID string, filter ListFilter) ([]Conversation, Pagination, error) {
	page := filter.PageRequest.Normalize()
	m.mu.RLock()
	var all []Conversation
	for _, c := range m.conversations {
		if c.TenantID != tenantID || (filter.UserID != "" && c.UserID != filter.UserID) {
			continue
		}
		all = append(all, *c)
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		case (a.LastMessageAt == nil) != (b.LastMessageAt == nil):
			return a.LastMessageAt != nil
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return window(all, page), NewPagination(page, len(all)), nil
}

func (m *MemoryStore) Messages(_ context.Context, tenantID, conversationID string, page PageRequest) ([]message.Message, Pagination, error) {
	page = page.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, Pagination{}, ErrNotFound
	}
	msgs := m.messages[conversationID]
	return window(msgs, page), NewPagination(page, len(msgs)), nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func window[T any](items []T, page PageRequest) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+page.Limit, len(items))
	return append([]T{}, items[start:end]...)
}
