package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/message"
)

type ConversationsHandler struct {
	store  conversation.Store
	logger *slog.Logger
}

func NewConversationsHandler(log *slog.Logger, store conversation.Store) *ConversationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationsHandler{store: store, logger: log.With(slog.String("handler", "conversations"))}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/api/conversations")
	group.GET("", h.List)
	group.GET("/:id/messages", h.Messages)
	group.DELETE("/:id", h.Delete)
}

// List godoc
// @Summary List conversations, most recent first
// @Tags conversations
// @Produce json
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Param userId query string false "Filter by end user"
// @Success 200 {object} PageResponse[conversation.Conversation]
// @Failure 401 {object} ErrorResponse
// @Router /api/conversations [get]
func (h *ConversationsHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	items, page, err := h.store.List(c.Request().Context(), tenantID, conversation.ListFilter{
		UserID:      strings.TrimSpace(c.QueryParam("userId")),
		PageRequest: pageRequest(c),
	})
	if err != nil {
		return chatError(h.logger, err)
	}
	return c.JSON(http.StatusOK, PageResponse[conversation.Conversation]{Items: items, Pagination: page})
}

// Messages godoc
// @Summary List the messages of a conversation, oldest first
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} PageResponse[message.Message]
// @Failure 404 {object} ErrorResponse
// @Router /api/conversations/{id}/messages [get]
func (h *ConversationsHandler) Messages(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	items, page, err := h.store.Messages(c.Request().Context(), tenantID, c.Param("id"), pageRequest(c))
	if err != nil {
		return chatError(h.logger, err)
	}
	return c.JSON(http.StatusOK, PageResponse[message.Message]{Items: items, Pagination: page})
}

// Delete godoc
// @Summary Delete a conversation and its messages
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/conversations/{id} [delete]
func (h *ConversationsHandler) Delete(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), tenantID, c.Param("id")); err != nil {
		return chatError(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
