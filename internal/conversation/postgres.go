package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/db"
	"github.com/useembed/useembed/internal/message"
)

const (
	conversationColumns = `id, tenant_id, session_id, user_id, title, message_count, last_message_at, is_active, created_at, updated_at`
	messageColumns      = `id, conversation_id, role, content, tool_calls, tool_results, input_tokens, output_tokens, created_at`
)

// PostgresStore persists conversations and messages. Message counts are bumped in the
// same statement that inserts the message.
type PostgresStore struct {
	db db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, tenantID, sessionID, userID string) (Conversation, error) {
	_, err := s.db.Exec(ctx, `INSERT INTO conversations (id, tenant_id, session_id, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, session_id) WHERE is_active DO NOTHING`,
		uuid.NewString(), tenantID, sessionID, userID)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 AND session_id = $2 AND is_active`, tenantID, sessionID)
	return scanConversation(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, tenantID, id string) (Conversation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanConversation(row)
}

func (s *PostgresStore) AddMessage(ctx context.Context, in message.Input) (message.Message, error) {
	toolCalls, err := marshalOptional(in.ToolCalls)
	if err != nil {
		return message.Message{}, fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResults, err := marshalOptional(in.ToolResults)
	if err != nil {
		return message.Message{}, fmt.Errorf("marshal tool results: %w", err)
	}
	var inputTokens, outputTokens *int
	if in.Tokens != nil {
		inputTokens, outputTokens = &in.Tokens.InputTokens, &in.Tokens.OutputTokens
	}
	msg := message.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		ToolCalls:      in.ToolCalls,
		ToolResults:    in.ToolResults,
		Tokens:         in.Tokens,
	}
	err = s.db.QueryRow(ctx, `WITH inserted AS (
			INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results, input_tokens, output_tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING conversation_id, created_at
		), bumped AS (
			UPDATE conversations c
			SET message_count = c.message_count + 1, last_message_at = inserted.created_at, updated_at = inserted.created_at
			FROM inserted WHERE c.id = inserted.conversation_id
		)
		SELECT created_at FROM inserted`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, toolCalls, toolResults, inputTokens, outputTokens,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return message.Message{}, ErrNotFound
		}
		return message.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = MaxPageLimit
	}
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`, seq FROM messages WHERE conversation_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq`, conversationID, limit)
}

func (s *PostgresStore) UpdateTitle(ctx context.Context, tenantID, conversationID, title string) error {
	tag, err := s.db.Exec(ctx, `UPDATE conversations SET title = $3, updated_at = now() WHERE tenant_id = $1 AND id = $2`, tenantID, conversationID, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, filter ListFilter) ([]Conversation, Pagination, error) {
	page := filter.PageRequest.Normalize()
	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM conversations
		WHERE tenant_id = $1 AND ($2 = '' OR user_id = $2)`, tenantID, filter.UserID).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("count conversations: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 AND ($2 = '' OR user_id = $2)
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $3 OFFSET $4`, tenantID, filter.UserID, page.Limit, page.Offset())
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, Pagination{}, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, fmt.Errorf("list conversations: %w", err)
	}
	return out, NewPagination(page, total), nil
}

func (s *PostgresStore) Messages(ctx context.Context, tenantID, conversationID string, page PageRequest) ([]message.Message, Pagination, error) {
	page = page.Normalize()
	conv, err := s.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, Pagination{}, err
	}
	msgs, err := s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`, conv.ID, page.Limit, page.Offset())
	if err != nil {
		return nil, Pagination{}, err
	}
	return msgs, NewPagination(page, conv.MessageCount), nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, sql string, args ...any) ([]message.Message, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := []message.Message{}
	for rows.Next() {
		var (
			m                         message.Message
			role                      string
			toolCalls, toolResults    []byte
			inputTokens, outputTokens *int
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &toolCalls, &toolResults,
			&inputTokens, &outputTokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = chat.Role(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if len(toolResults) > 0 {
			if err := json.Unmarshal(toolResults, &m.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}
		if inputTokens != nil || outputTokens != nil {
			m.Tokens = &chat.Usage{}
			if inputTokens != nil {
				m.Tokens.InputTokens = *inputTokens
			}
			if outputTokens != nil {
				m.Tokens.OutputTokens = *outputTokens
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		c    Conversation
		last *time.Time
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.SessionID, &c.UserID, &c.Title, &c.MessageCount, &last,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.LastMessageAt = last
	return c, nil
}

func marshalOptional[T any](items []T) ([]byte, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return json.Marshal(items)
}
