package flow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/useembed/useembed/internal/analytics"
	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/invoker"
	"github.com/useembed/useembed/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// scriptedGenerator answers title requests with title and everything else with reply.
type scriptedGenerator struct {
	mu       sync.Mutex
	reply    func(call int, msgs []chat.Message, opts chat.Options) (chat.Result, error)
	title    string
	calls    int
	seen     [][]chat.Message
	prompts  []string
	inFlight int
	maxSeen  int
}

func (g *scriptedGenerator) Generate(ctx context.Context, msgs []chat.Message, opts chat.Options) (chat.Result, error) {
	if opts.MaxTokens == titleMaxTokens && len(opts.Tools) == 0 {
		return chat.Result{Content: g.title}, nil
	}
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.seen = append(g.seen, append([]chat.Message(nil), msgs...))
	g.prompts = append(g.prompts, opts.SystemPrompt)
	g.inFlight++
	g.maxSeen = max(g.maxSeen, g.inFlight)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()
	return g.reply(call, msgs, opts)
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.UsageEvent
	calls  []analytics.APICallLog
}

func (s *recordingSink) RecordMessageUsage(_ context.Context, e analytics.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) RecordAPICall(_ context.Context, l analytics.APICallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, l)
	return nil
}

type staticPrompt string

func (p staticPrompt) CustomPrompt(context.Context, string) (string, error) { return string(p), nil }

type harness struct {
	orch  *Orchestrator
	store *conversation.MemoryStore
	gen   *scriptedGenerator
	sink  *recordingSink
	tasks *TaskRunner
}

func newHarness(t *testing.T, gen *scriptedGenerator, cfg Config) *harness {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/42/status" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"unknown order"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"shipped"}`)
	}))
	t.Cleanup(srv.Close)

	registrySvc := registry.NewService(nil, registry.NewMemoryStore())
	_, err := registrySvc.Create(context.Background(), "tenant-1", registry.APIInput{
		Name:    "Orders",
		BaseURL: srv.URL,
		Endpoints: []registry.EndpointInput{{
			Name:        "get_status",
			Description: "Get the shipping status of an order",
			Method:      "GET",
			Path:        "/orders/{id}/status",
			Parameters:  []registry.Parameter{{Name: "id", In: registry.InPath, Type: "string", Required: true}},
		}},
	})
	if err != nil {
		t.Fatalf("register api: %v", err)
	}

	sink := &recordingSink{}
	store := conversation.NewMemoryStore()
	tasks := NewTaskRunner(nil, time.Second)
	t.Cleanup(func() { _ = tasks.Drain(context.Background()) })
	orch := New(nil, Deps{
		Store:     store,
		Catalog:   catalog.NewBuilder(registrySvc.Store()),
		Generator: gen,
		Tools:     invoker.New(nil, registrySvc.Store(), sink, invoker.Config{}),
		Prompts:   staticPrompt("Always mention the order number."),
		Sink:      sink,
		Tasks:     tasks,
	}, cfg)
	return &harness{orch: orch, store: store, gen: gen, sink: sink, tasks: tasks}
}

func statusCall(id string) chat.ToolCall {
	return chat.ToolCall{ID: id, Name: "Orders_get_status", Arguments: map[string]any{"id": "42"}}
}

func TestProcessMessageRunsToolRound(t *testing.T) {
	gen := &scriptedGenerator{
		title: "  \"Order   42 status\"  ",
		reply: func(call int, msgs []chat.Message, opts chat.Options) (chat.Result, error) {
			if call == 1 {
				return chat.Result{
					ToolCalls:    []chat.ToolCall{statusCall("call_1")},
					FinishReason: chat.FinishToolCalls,
					Usage:        chat.Usage{InputTokens: 80, OutputTokens: 4},
				}, nil
			}
			return chat.Result{Content: "Order 42 is shipped.", Usage: chat.Usage{InputTokens: 120, OutputTokens: 9}}, nil
		},
	}
	h := newHarness(t, gen, Config{TitleGeneration: true})
	ctx := context.Background()

	res, err := h.orch.ProcessMessage(ctx, "Where is order 42?", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if res.Message.Content != "Order 42 is shipped." {
		t.Fatalf("unexpected reply %q", res.Message.Content)
	}
	if len(res.Message.ToolCalls) != 1 || res.Message.ToolCalls[0].Name != "Orders_get_status" {
		t.Fatalf("unexpected tool calls %+v", res.Message.ToolCalls)
	}
	if len(res.Message.ToolResults) != 1 || res.Message.ToolResults[0].Error != "" {
		t.Fatalf("unexpected tool results %+v", res.Message.ToolResults)
	}
	if payload := res.Message.ToolResults[0].Result.(map[string]any); payload["status"] != "shipped" {
		t.Fatalf("unexpected tool payload %+v", payload)
	}
	if res.Message.Tokens == nil || res.Message.Tokens.OutputTokens != 9 {
		t.Fatalf("expected usage of the final pass, got %+v", res.Message.Tokens)
	}
	if len(res.ToolsExecuted) != 1 {
		t.Fatalf("expected one executed tool, got %d", len(res.ToolsExecuted))
	}

	second := gen.seen[1]
	if len(second) != 3 || second[1].Role != chat.RoleAssistant || second[2].Role != chat.RoleTool {
		t.Fatalf("unexpected second pass messages %+v", second)
	}
	if second[2].ToolResults[0].ToolCallID != "call_1" {
		t.Fatalf("tool message must answer call_1: %+v", second[2])
	}
	if gen.prompts[0] != "Always mention the order number." {
		t.Fatalf("custom prompt not passed: %q", gen.prompts[0])
	}

	if err := h.tasks.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	conv, err := h.store.GetByID(ctx, "tenant-1", res.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.Title != "Order 42 status" {
		t.Fatalf("unexpected title %q", conv.Title)
	}
	if conv.MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", conv.MessageCount)
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	if len(h.sink.events) != 2 {
		t.Fatalf("expected a tool round and a message event, got %+v", h.sink.events)
	}
	byType := map[analytics.EventType]analytics.UsageEvent{}
	for _, e := range h.sink.events {
		byType[e.Type] = e
	}
	if e, ok := byType[analytics.EventToolExecution]; !ok || e.InputTokens != 80 || e.ConversationID != res.ConversationID {
		t.Fatalf("unexpected tool execution event %+v", h.sink.events)
	}
	if e, ok := byType[analytics.EventMessage]; !ok || e.InputTokens != 120 {
		t.Fatalf("unexpected message event %+v", h.sink.events)
	}
	if len(h.sink.calls) != 1 || h.sink.calls[0].StatusCode != http.StatusOK {
		t.Fatalf("unexpected api call logs %+v", h.sink.calls)
	}
}

func TestProcessMessageContinuity(t *testing.T) {
	gen := &scriptedGenerator{
		title: "Greeting",
		reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
			return chat.Result{Content: "Hello!"}, nil
		},
	}
	h := newHarness(t, gen, Config{TitleGeneration: true})
	ctx := context.Background()
	cc := ChatContext{TenantID: "tenant-1", SessionID: "s1", UserID: "u1"}

	first, err := h.orch.ProcessMessage(ctx, "hi", cc)
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	second, err := h.orch.ProcessMessage(ctx, "hi again", cc)
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Fatalf("expected one conversation, got %s and %s", first.ConversationID, second.ConversationID)
	}
	conv, _ := h.store.GetByID(ctx, "tenant-1", first.ConversationID)
	if conv.MessageCount != 4 {
		t.Fatalf("expected 4 messages, got %d", conv.MessageCount)
	}
	if history := gen.seen[1]; len(history) != 3 || history[2].Content != "hi again" {
		t.Fatalf("second pass must see the prior exchange, got %+v", history)
	}
	if first.ToolsExecuted != nil {
		t.Fatalf("no tools expected")
	}
}

func TestProcessMessageRoundLimit(t *testing.T) {
	for _, tc := range []struct {
		rounds      int
		wantPasses  int
		wantCalls   int
		wantResults int
	}{
		{rounds: 0, wantPasses: 2, wantCalls: 2, wantResults: 1},
		{rounds: 2, wantPasses: 3, wantCalls: 3, wantResults: 2},
		{rounds: 50, wantPasses: 6, wantCalls: 6, wantResults: 5},
	} {
		gen := &scriptedGenerator{
			reply: func(call int, _ []chat.Message, _ chat.Options) (chat.Result, error) {
				return chat.Result{Content: "checking", ToolCalls: []chat.ToolCall{statusCall("call_" + string(rune('0'+call)))}}, nil
			},
		}
		h := newHarness(t, gen, Config{MaxToolRounds: tc.rounds})
		res, err := h.orch.ProcessMessage(context.Background(), "status?", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
		if err != nil {
			t.Fatalf("rounds=%d: %v", tc.rounds, err)
		}
		if gen.callCount() != tc.wantPasses {
			t.Fatalf("rounds=%d: expected %d passes, got %d", tc.rounds, tc.wantPasses, gen.callCount())
		}
		if len(res.Message.ToolCalls) != tc.wantCalls || len(res.Message.ToolResults) != tc.wantResults {
			t.Fatalf("rounds=%d: got %d calls and %d results", tc.rounds, len(res.Message.ToolCalls), len(res.Message.ToolResults))
		}
	}
}

func TestProcessMessageToolFailureIsIsolated(t *testing.T) {
	gen := &scriptedGenerator{
		reply: func(call int, msgs []chat.Message, _ chat.Options) (chat.Result, error) {
			if call == 1 {
				return chat.Result{ToolCalls: []chat.ToolCall{
					statusCall("a"),
					{ID: "b", Name: "Billing_get_invoice"},
					statusCall("c"),
				}}, nil
			}
			return chat.Result{Content: "Done."}, nil
		},
	}
	h := newHarness(t, gen, Config{})
	res, err := h.orch.ProcessMessage(context.Background(), "status?", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	failures := 0
	for _, r := range res.Message.ToolResults {
		if r.Error != "" {
			failures++
		}
	}
	if len(res.Message.ToolResults) != 3 || failures != 1 {
		t.Fatalf("expected 3 results with one failure, got %+v", res.Message.ToolResults)
	}
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	gen := &scriptedGenerator{reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
		return chat.Result{Content: "never"}, nil
	}}
	h := newHarness(t, gen, Config{})
	_, err := h.orch.ProcessMessage(context.Background(), "hi", ChatContext{TenantID: "tenant-1", SessionID: "s1", ConversationID: "missing"})
	if !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator must not run")
	}
}

func TestProcessMessageGenerationFailureKeepsUserMessage(t *testing.T) {
	gen := &scriptedGenerator{reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
		return chat.Result{}, errors.New("all providers failed")
	}}
	h := newHarness(t, gen, Config{TitleGeneration: true})
	ctx := context.Background()
	_, err := h.orch.ProcessMessage(ctx, "hi", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
	if err == nil || !strings.Contains(err.Error(), "all providers failed") {
		t.Fatalf("expected generation error, got %v", err)
	}
	conv, err := h.store.GetOrCreate(ctx, "tenant-1", "s1", "")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.MessageCount != 1 {
		t.Fatalf("expected only the user message, got %d", conv.MessageCount)
	}
	if len(h.sink.events) != 0 {
		t.Fatalf("no usage event expected on failure")
	}
}

func TestProcessMessageSerializesSession(t *testing.T) {
	gen := &scriptedGenerator{reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
		time.Sleep(5 * time.Millisecond)
		return chat.Result{Content: "ok"}, nil
	}}
	h := newHarness(t, gen, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.orch.ProcessMessage(context.Background(), "hi", ChatContext{TenantID: "tenant-1", SessionID: "s1"}); err != nil {
				t.Errorf("process message: %v", err)
			}
		}()
	}
	wg.Wait()
	if gen.maxSeen != 1 {
		t.Fatalf("expected serialized cycles, saw %d concurrent", gen.maxSeen)
	}
	list, _, _ := h.store.List(context.Background(), "tenant-1", conversation.ListFilter{})
	if len(list) != 1 || list[0].MessageCount != 10 {
		t.Fatalf("expected one conversation with 10 messages, got %+v", list)
	}
}

func TestProcessMessageSerializesWithAndWithoutConversationID(t *testing.T) {
	gen := &scriptedGenerator{reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
		time.Sleep(20 * time.Millisecond)
		return chat.Result{Content: "ok"}, nil
	}}
	h := newHarness(t, gen, Config{})
	ctx := context.Background()
	first, err := h.orch.ProcessMessage(ctx, "hi", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("first message: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		cc := ChatContext{TenantID: "tenant-1", SessionID: "s1"}
		if i%2 == 0 {
			cc.ConversationID = first.ConversationID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.ProcessMessage(ctx, "again", cc)
			if err != nil {
				t.Errorf("process message: %v", err)
				return
			}
			if res.ConversationID != first.ConversationID {
				t.Errorf("expected conversation %s, got %s", first.ConversationID, res.ConversationID)
			}
		}()
	}
	wg.Wait()

	gen.mu.Lock()
	maxSeen := gen.maxSeen
	gen.mu.Unlock()
	if maxSeen != 1 {
		t.Fatalf("expected serialized cycles on one conversation, saw %d concurrent", maxSeen)
	}
	conv, err := h.store.GetByID(ctx, "tenant-1", first.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.MessageCount != 10 {
		t.Fatalf("expected 10 messages, got %d", conv.MessageCount)
	}
}

func TestHistory(t *testing.T) {
	gen := &scriptedGenerator{reply: func(int, []chat.Message, chat.Options) (chat.Result, error) {
		return chat.Result{Content: "ok"}, nil
	}}
	h := newHarness(t, gen, Config{})
	ctx := context.Background()
	res, err := h.orch.ProcessMessage(ctx, "hi", ChatContext{TenantID: "tenant-1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	conv, msgs, err := h.orch.History(ctx, "tenant-1", res.ConversationID, 50)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if conv.ID != res.ConversationID || len(msgs) != 2 || msgs[0].Role != chat.RoleUser {
		t.Fatalf("unexpected history %+v", msgs)
	}
	if _, _, err := h.orch.History(ctx, "tenant-2", res.ConversationID, 50); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Order status  ", "Order status"},
		{"\"Order status\"", "Order status"},
		{"'Refund\n\n request'", "Refund request"},
		{"“Smart quotes”", "Smart quotes"},
		{"", ""},
		{strings.Repeat("word ", 40), strings.TrimSpace(strings.Repeat("word ", 16))},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Fatalf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
