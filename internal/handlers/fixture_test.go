package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/accounts"
	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/conversation/flow"
	"github.com/useembed/useembed/internal/message"
	"github.com/useembed/useembed/internal/server"
	"github.com/useembed/useembed/internal/tenants"
)

const testSecret = "test-secret"

// echoChat replies "echo: <text>" and reports a fixed number of tool results.
type echoChat struct {
	store *conversation.MemoryStore
	tools int
	err   error

	mu    sync.Mutex
	calls []flow.ChatContext
}

func (f *echoChat) ProcessMessage(ctx context.Context, text string, cc flow.ChatContext) (flow.ChatResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cc)
	failure := f.err
	f.mu.Unlock()
	if failure != nil {
		return flow.ChatResult{}, failure
	}
	var (
		conv conversation.Conversation
		err  error
	)
	if cc.ConversationID != "" {
		conv, err = f.store.GetByID(ctx, cc.TenantID, cc.ConversationID)
	} else {
		conv, err = f.store.GetOrCreate(ctx, cc.TenantID, cc.SessionID, cc.UserID)
	}
	if err != nil {
		return flow.ChatResult{}, err
	}
	if _, err := f.store.AddMessage(ctx, message.Input{ConversationID: conv.ID, Role: chat.RoleUser, Content: text}); err != nil {
		return flow.ChatResult{}, err
	}
	reply, err := f.store.AddMessage(ctx, message.Input{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "echo: " + text})
	if err != nil {
		return flow.ChatResult{}, err
	}
	return flow.ChatResult{Message: reply, ConversationID: conv.ID, ToolsExecuted: make([]chat.ToolResult, f.tools)}, nil
}

func (f *echoChat) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *echoChat) History(ctx context.Context, tenantID, conversationID string, limit int) (conversation.Conversation, []message.Message, error) {
	conv, err := f.store.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return conversation.Conversation{}, nil, err
	}
	msgs, err := f.store.RecentMessages(ctx, conv.ID, limit)
	return conv, msgs, err
}

type fixture struct {
	e             *echo.Echo
	tenants       *tenants.Service
	accounts      *accounts.Service
	conversations *conversation.MemoryStore
	chat          *echoChat
	tenant        tenants.Tenant
	account       accounts.Account
}

func newFixture(t *testing.T, extra ...server.Handler) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		tenants:       tenants.NewService(nil, tenants.NewMemoryStore()),
		accounts:      accounts.NewService(nil, accounts.NewMemoryStore()),
		conversations: conversation.NewMemoryStore(),
	}
	f.chat = &echoChat{store: f.conversations}

	var err error
	f.tenant, err = f.tenants.Create(ctx, "Acme", "")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	f.account, err = f.accounts.Create(ctx, accounts.CreateInput{
		TenantID: f.tenant.ID,
		Email:    "owner@acme.test",
		Password: "password-1",
		Role:     accounts.RoleOwner,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	handlers := []server.Handler{
		NewPingHandler(nil),
		NewAuthHandler(nil, f.accounts, f.tenants, testSecret, time.Hour),
		NewWidgetHandler(nil, f.chat, f.conversations, f.tenants),
		NewConversationsHandler(nil, f.conversations),
		NewTenantHandler(nil, f.tenants),
	}
	handlers = append(handlers, extra...)
	f.e = server.NewServer(nil, "", testSecret, handlers...).Echo()
	return f
}

// token issues a dashboard JWT for the fixture account.
func (f *fixture) token(t *testing.T) string {
	t.Helper()
	token, _, err := auth.GenerateToken(auth.Identity{AccountID: f.account.ID, TenantID: f.tenant.ID, Role: f.account.Role}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

type requestOption func(*http.Request)

func withAPIKey(key string) requestOption {
	return func(r *http.Request) { r.Header.Set(auth.APIKeyHeader, key) }
}

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func (f *fixture) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func accountInput(tenantID, email string) accounts.CreateInput {
	return accounts.CreateInput{TenantID: tenantID, Email: email, Password: "password-1"}
}
