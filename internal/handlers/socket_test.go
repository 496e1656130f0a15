package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialSocket(t *testing.T, f *fixture, apiKey, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(f.e)
	t.Cleanup(srv.Close)
	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("sessionId", sessionID)
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?"+q.Encode(), nil)
}

type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) inFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame inFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func newSocketFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.e.GET("/ws", NewSocketHandler(nil, f.chat, f.tenants, nil, nil).Serve)
	return f
}

func TestSocketMessageFlow(t *testing.T) {
	f := newSocketFixture(t)
	f.chat.tools = 2
	conn, _, err := dialSocket(t, f, f.tenant.APIKey, "s1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": EventSendMessage, "data": map[string]string{"message": "hello"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, want := range []string{EventTypingStart, EventTypingStop} {
		if got := readFrame(t, conn); got.Event != want {
			t.Fatalf("expected %s, got %s", want, got.Event)
		}
	}
	frame := readFrame(t, conn)
	if frame.Event != EventMessageReceived {
		t.Fatalf("expected %s, got %s (%s)", EventMessageReceived, frame.Event, frame.Data)
	}
	var received SocketMessageReceived
	if err := json.Unmarshal(frame.Data, &received); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if received.Message.Content != "echo: hello" || received.ToolsExecuted != 2 || received.ConversationID == "" {
		t.Fatalf("unexpected payload: %+v", received)
	}

	if err := conn.WriteJSON(map[string]any{"event": EventJoinConversation, "data": map[string]string{"conversationId": received.ConversationID}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Event != EventHistory {
		t.Fatalf("expected history, got %s", frame.Event)
	}
	var history SocketHistory
	if err := json.Unmarshal(frame.Data, &history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history.Messages))
	}
}

func TestSocketErrors(t *testing.T) {
	f := newSocketFixture(t)
	conn, _, err := dialSocket(t, f, f.tenant.APIKey, "s1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frames := []string{
		`{"event":"dance"}`,
		`not json`,
		`{"event":"conversation:join","data":{"conversationId":"missing"}}`,
		`{"event":"send:message","data":{"message":"   "}}`,
	}
	for _, raw := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := readFrame(t, conn); got.Event != EventError {
			t.Fatalf("frame %s: expected error event, got %s", raw, got.Event)
		}
	}

	f.chat.fail(errors.New("boom"))
	if err := conn.WriteJSON(map[string]any{"event": EventSendMessage, "data": map[string]string{"message": "hi"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrame(t, conn)
	readFrame(t, conn)
	frame := readFrame(t, conn)
	if frame.Event != EventError || !strings.Contains(string(frame.Data), "something went wrong") {
		t.Fatalf("expected generic error, got %s %s", frame.Event, frame.Data)
	}
}

func TestSocketRejectsBadHandshake(t *testing.T) {
	f := newSocketFixture(t)

	_, resp, err := dialSocket(t, f, "ue_wrong", "s1")
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake failure, got err=%v resp=%v", err, resp)
	}
	_, resp, err = dialSocket(t, f, f.tenant.APIKey, "")
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake failure, got err=%v resp=%v", err, resp)
	}
}

func TestOriginAllowed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://shop.example.com", nil, true},
		{"https://shop.example.com", []string{"shop.example.com"}, true},
		{"https://shop.example.com", []string{"https://shop.example.com"}, true},
		{"https://evil.test", []string{"shop.example.com"}, false},
		{"https://evil.test", []string{"*"}, true},
		{"", []string{"shop.example.com"}, true},
	}
	for _, tc := range cases {
		if got := originAllowed(tc.origin, tc.allowed); got != tc.want {
			t.Fatalf("originAllowed(%q, %v) = %v, want %v", tc.origin, tc.allowed, got, tc.want)
		}
	}
}
