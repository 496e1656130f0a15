package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/conversation/flow"
	"github.com/useembed/useembed/internal/message"
	"github.com/useembed/useembed/internal/tenants"
)

const widgetHistoryLimit = 50

// ChatService runs message cycles. Implemented by *flow.Orchestrator.
type ChatService interface {
	ProcessMessage(ctx context.Context, text string, cc flow.ChatContext) (flow.ChatResult, error)
	History(ctx context.Context, tenantID, conversationID string, limit int) (conversation.Conversation, []message.Message, error)
}

type WidgetHandler struct {
	chat          ChatService
	conversations conversation.Store
	tenants       auth.TenantResolver
	logger        *slog.Logger
}

func NewWidgetHandler(log *slog.Logger, chat ChatService, conversations conversation.Store, resolver auth.TenantResolver) *WidgetHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WidgetHandler{
		chat:          chat,
		conversations: conversations,
		tenants:       resolver,
		logger:        log.With(slog.String("handler", "widget")),
	}
}

func (h *WidgetHandler) Register(e *echo.Echo) {
	group := e.Group("/api/widget")
	group.GET("/health", h.Health)

	apiKey := auth.APIKeyMiddleware(h.logger, h.tenants)
	group.POST("/init", h.Init, apiKey)
	group.POST("/message", h.Message, apiKey)
	group.GET("/conversation/:id", h.Conversation, apiKey)
}

type WidgetInitRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=200"`
	UserID    string `json:"userId,omitempty" validate:"max=200"`
}

type WidgetConversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type WidgetInitResponse struct {
	Tenant       tenants.PublicSettings `json:"tenant"`
	Conversation WidgetConversation     `json:"conversation"`
	Messages     []message.Message      `json:"messages"`
}

// Init godoc
// @Summary Start or resume a widget session
// @Description Returns widget settings, the active conversation of the session and its latest messages
// @Tags widget
// @Accept json
// @Produce json
// @Param X-API-Key header string true "Tenant API key"
// @Param request body WidgetInitRequest true "Session"
// @Success 200 {object} WidgetInitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/widget/init [post]
func (h *WidgetHandler) Init(c echo.Context) error {
	tenant, err := auth.TenantFromContext(c)
	if err != nil {
		return err
	}
	var req WidgetInitRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.GetOrCreate(ctx, tenant.ID, strings.TrimSpace(req.SessionID), req.UserID)
	if err != nil {
		return chatError(h.logger, err)
	}
	msgs, err := h.conversations.RecentMessages(ctx, conv.ID, widgetHistoryLimit)
	if err != nil {
		return chatError(h.logger, err)
	}
	return c.JSON(http.StatusOK, WidgetInitResponse{
		Tenant:       tenant.Public(),
		Conversation: WidgetConversation{ID: conv.ID, Title: conv.Title},
		Messages:     msgs,
	})
}

type WidgetMessageRequest struct {
	Message        string `json:"message" validate:"required,min=1,max=10000"`
	SessionID      string `json:"sessionId" validate:"required,max=200"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty" validate:"max=200"`
}

// Message godoc
// @Summary Send a chat message
// @Description Runs one message cycle, calling registered APIs as tools when the model asks for them
// @Tags widget
// @Accept json
// @Produce json
// @Param X-API-Key header string true "Tenant API key"
// @Param request body WidgetMessageRequest true "Message"
// @Success 200 {object} flow.ChatResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/widget/message [post]
func (h *WidgetHandler) Message(c echo.Context) error {
	tenant, err := auth.TenantFromContext(c)
	if err != nil {
		return err
	}
	var req WidgetMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	result, err := h.chat.ProcessMessage(c.Request().Context(), text, flow.ChatContext{
		TenantID:       tenant.ID,
		SessionID:      strings.TrimSpace(req.SessionID),
		UserID:         req.UserID,
		ConversationID: strings.TrimSpace(req.ConversationID),
	})
	if err != nil {
		return chatError(h.logger, err)
	}
	return c.JSON(http.StatusOK, result)
}

type WidgetConversationResponse struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []message.Message         `json:"messages"`
	Pagination   conversation.Pagination   `json:"pagination"`
}

// Conversation godoc
// @Summary Get a conversation with its messages
// @Tags widget
// @Produce json
// @Param X-API-Key header string true "Tenant API key"
// @Param id path string true "Conversation ID"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} WidgetConversationResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/widget/conversation/{id} [get]
func (h *WidgetHandler) Conversation(c echo.Context) error {
	tenant, err := auth.TenantFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.GetByID(ctx, tenant.ID, c.Param("id"))
	if err != nil {
		return chatError(h.logger, err)
	}
	msgs, page, err := h.conversations.Messages(ctx, tenant.ID, conv.ID, pageRequest(c))
	if err != nil {
		return chatError(h.logger, err)
	}
	return c.JSON(http.StatusOK, WidgetConversationResponse{Conversation: conv, Messages: msgs, Pagination: page})
}

func (h *WidgetHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
