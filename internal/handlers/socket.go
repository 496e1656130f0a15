package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/useembed/useembed/internal/auth"
	"github.com/useembed/useembed/internal/conversation/flow"
	"github.com/useembed/useembed/internal/message"
	"github.com/useembed/useembed/internal/tenants"
)

const (
	EventSendMessage      = "send:message"
	EventJoinConversation = "conversation:join"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessageReceived  = "message:received"
	EventHistory          = "conversation:history"
	EventError            = "error"
)

const (
	socketReadWait     = 60 * time.Second
	socketPingInterval = 25 * time.Second
	socketWriteWait    = 10 * time.Second
	socketReadLimit    = 64 * 1024
	socketSendBuffer   = 16
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type socketSendMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

type socketJoin struct {
	ConversationID string `json:"conversationId"`
}

type SocketMessageReceived struct {
	Message        message.Message `json:"message"`
	ConversationID string          `json:"conversationId"`
	ToolsExecuted  int             `json:"toolsExecuted"`
}

type SocketHistory struct {
	ConversationID string            `json:"conversationId"`
	Messages       []message.Message `json:"messages"`
}

// SocketHandler is the realtime widget gateway on /ws.
type SocketHandler struct {
	chat        ChatService
	tenants     auth.TenantResolver
	upgrader    websocket.Upgrader
	origins     []string
	connections prometheus.Gauge
	logger      *slog.Logger
}

func NewSocketHandler(log *slog.Logger, chat ChatService, resolver auth.TenantResolver, allowedOrigins []string, reg prometheus.Registerer) *SocketHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &SocketHandler{
		chat:    chat,
		tenants: resolver,
		origins: allowedOrigins,
		connections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "useembed",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open widget websocket connections.",
		}),
		logger: log.With(slog.String("handler", "socket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(r.Header.Get("Origin"), h.origins) },
	}
	return h
}

func (h *SocketHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve godoc
// @Summary Widget websocket
// @Description Upgrades to a websocket carrying {event, data} frames
// @Tags widget
// @Param apiKey query string true "Tenant API key"
// @Param sessionId query string true "Widget session"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /ws [get]
func (h *SocketHandler) Serve(c echo.Context) error {
	r := c.Request()
	key := auth.APIKeyFromRequest(r)
	if key == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
	}
	tenant, err := h.tenants.GetByAPIKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, tenants.ErrInvalidAPIKey) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
		}
		h.logger.Error("resolve api key failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
	sessionID := strings.TrimSpace(c.QueryParam("sessionId"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	h.connections.Inc()
	defer h.connections.Dec()

	s := &socketSession{
		handler:   h,
		conn:      conn,
		tenantID:  tenant.ID,
		sessionID: sessionID,
		userID:    strings.TrimSpace(c.QueryParam("userId")),
		send:      make(chan outFrame, socketSendBuffer),
		done:      make(chan struct{}),
		logger:    h.logger.With(slog.String("tenant_id", tenant.ID), slog.String("session_id", sessionID)),
	}
	s.run(r.Context())
	return nil
}

type socketSession struct {
	handler        *SocketHandler
	conn           *websocket.Conn
	tenantID       string
	sessionID      string
	userID         string
	conversationID string
	send           chan outFrame
	done           chan struct{}
	logger         *slog.Logger
}

func (s *socketSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writeLoop()
	defer func() {
		close(s.send)
		<-s.done
	}()

	s.conn.SetReadLimit(socketReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(socketReadWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(socketReadWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("websocket read ended", slog.Any("error", err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.emit(EventError, map[string]string{"message": "invalid frame"})
		} else {
			s.handle(ctx, frame)
		}
		// Frames are handled inline; a long cycle must not expire the read deadline.
		_ = s.conn.SetReadDeadline(time.Now().Add(socketReadWait))
	}
}

func (s *socketSession) handle(ctx context.Context, frame Frame) {
	switch frame.Event {
	case EventSendMessage:
		var in socketSendMessage
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			s.emit(EventError, map[string]string{"message": "invalid message payload"})
			return
		}
		s.sendMessage(ctx, in)
	case EventJoinConversation:
		var in socketJoin
		if err := json.Unmarshal(frame.Data, &in); err != nil || strings.TrimSpace(in.ConversationID) == "" {
			s.emit(EventError, map[string]string{"message": "conversationId is required"})
			return
		}
		s.join(ctx, strings.TrimSpace(in.ConversationID))
	default:
		s.emit(EventError, map[string]string{"message": "unknown event"})
	}
}

func (s *socketSession) sendMessage(ctx context.Context, in socketSendMessage) {
	text := strings.TrimSpace(in.Message)
	if text == "" || len([]rune(text)) > 10000 {
		s.emit(EventError, map[string]string{"message": "message must be between 1 and 10000 characters"})
		return
	}
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		conversationID = s.conversationID
	}
	userID := in.UserID
	if userID == "" {
		userID = s.userID
	}

	s.emit(EventTypingStart, nil)
	result, err := s.handler.chat.ProcessMessage(ctx, text, flow.ChatContext{
		TenantID:       s.tenantID,
		SessionID:      s.sessionID,
		UserID:         userID,
		ConversationID: conversationID,
	})
	s.emit(EventTypingStop, nil)
	if err != nil {
		s.emitChatError(err)
		return
	}
	s.conversationID = result.ConversationID
	s.emit(EventMessageReceived, SocketMessageReceived{
		Message:        result.Message,
		ConversationID: result.ConversationID,
		ToolsExecuted:  len(result.ToolsExecuted),
	})
}

func (s *socketSession) join(ctx context.Context, conversationID string) {
	conv, msgs, err := s.handler.chat.History(ctx, s.tenantID, conversationID, widgetHistoryLimit)
	if err != nil {
		s.emitChatError(err)
		return
	}
	s.conversationID = conv.ID
	s.emit(EventHistory, SocketHistory{ConversationID: conv.ID, Messages: msgs})
}

func (s *socketSession) emitChatError(err error) {
	var httpErr *echo.HTTPError
	if errors.As(chatError(s.logger, err), &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			s.emit(EventError, map[string]string{"message": msg})
			return
		}
	}
	s.emit(EventError, map[string]string{"message": "something went wrong"})
}

// emit queues a frame unless the writer has stopped.
func (s *socketSession) emit(event string, data any) {
	select {
	case s.send <- outFrame{Event: event, Data: data}:
	case <-s.done:
	}
}

func (s *socketSession) writeLoop() {
	ticker := time.NewTicker(socketPingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.done)
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originAllowed accepts any origin when no list is configured. Entries match the
// full origin or its host.
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, host) {
			return true
		}
	}
	return false
}
