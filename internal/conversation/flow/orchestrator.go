// Package flow runs one chat message through history, tools and generation.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/useembed/useembed/internal/analytics"
	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/conversation"
	"github.com/useembed/useembed/internal/invoker"
	"github.com/useembed/useembed/internal/message"
)

const (
	DefaultHistoryLimit  = 20
	DefaultMaxToolRounds = 1
	MaxToolRoundsLimit   = 5
	titleMaxTokens       = 50
	titleMaxChars        = 80
)

// Generator produces one model response.
type Generator interface {
	Generate(ctx context.Context, messages []chat.Message, opts chat.Options) (chat.Result, error)
}

// ToolExecutor runs tool calls. Failures are carried in the results.
type ToolExecutor interface {
	ExecuteAll(ctx context.Context, calls []chat.ToolCall, cc invoker.CallContext) []chat.ToolResult
}

// PromptSource returns a tenant's custom system prompt.
type PromptSource interface {
	CustomPrompt(ctx context.Context, tenantID string) (string, error)
}

type Config struct {
	HistoryLimit    int
	MaxToolRounds   int
	TitleGeneration bool
}

// ChatContext identifies who is talking. ConversationID is optional.
type ChatContext struct {
	TenantID       string
	SessionID      string
	UserID         string
	ConversationID string
}

type ChatResult struct {
	Message        message.Message   `json:"message"`
	ConversationID string            `json:"conversationId"`
	ToolsExecuted  []chat.ToolResult `json:"toolsExecuted,omitempty"`
}

// Orchestrator owns the message cycle: persist the user turn, generate with tools,
// persist the reply and kick off background bookkeeping.
type Orchestrator struct {
	store     conversation.Store
	locker    conversation.Locker
	catalog   catalog.Source
	generator Generator
	tools     ToolExecutor
	prompts   PromptSource
	sink      analytics.Sink
	tasks     *TaskRunner
	cfg       Config
	logger    *slog.Logger
}

type Deps struct {
	Store     conversation.Store
	Locker    conversation.Locker
	Catalog   catalog.Source
	Generator Generator
	Tools     ToolExecutor
	Prompts   PromptSource
	Sink      analytics.Sink
	Tasks     *TaskRunner
}

func New(log *slog.Logger, deps Deps, cfg Config) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	cfg.MaxToolRounds = min(max(cfg.MaxToolRounds, DefaultMaxToolRounds), MaxToolRoundsLimit)
	if deps.Locker == nil {
		deps.Locker = conversation.NewLocalLocker()
	}
	if deps.Tasks == nil {
		deps.Tasks = NewTaskRunner(log, 0)
	}
	return &Orchestrator{
		store:     deps.Store,
		locker:    deps.Locker,
		catalog:   deps.Catalog,
		generator: deps.Generator,
		tools:     deps.Tools,
		prompts:   deps.Prompts,
		sink:      deps.Sink,
		tasks:     deps.Tasks,
		cfg:       cfg,
		logger:    log.With(slog.String("service", "conversation_flow")),
	}
}

// ProcessMessage handles one user message end to end. Cycles of the same conversation
// run one at a time.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string, cc ChatContext) (ChatResult, error) {
	// The lock is keyed by the resolved id so requests with and without a
	// conversation id queue behind each other.
	conv, err := o.resolveConversation(ctx, cc)
	if err != nil {
		return ChatResult{}, err
	}
	unlock, err := o.locker.Lock(ctx, conversation.LockKey(conv.ID))
	if err != nil {
		return ChatResult{}, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()
	if _, err := o.store.AddMessage(ctx, message.Input{ConversationID: conv.ID, Role: chat.RoleUser, Content: text}); err != nil {
		return ChatResult{}, fmt.Errorf("persist user message: %w", err)
	}
	history, err := o.store.RecentMessages(ctx, conv.ID, o.cfg.HistoryLimit)
	if err != nil {
		return ChatResult{}, fmt.Errorf("load history: %w", err)
	}
	tools, err := o.catalog.Build(ctx, cc.TenantID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("build tool catalog: %w", err)
	}

	opts := chat.Options{Tools: tools, SystemPrompt: o.customPrompt(ctx, cc.TenantID)}
	msgs := message.ToChat(history)
	result, err := o.generator.Generate(ctx, msgs, opts)
	if err != nil {
		return ChatResult{}, fmt.Errorf("generate reply: %w", err)
	}

	var (
		allCalls   []chat.ToolCall
		allResults []chat.ToolResult
	)
	callCtx := invoker.CallContext{TenantID: cc.TenantID, ConversationID: conv.ID, Tools: catalog.Index(tools)}
	for round := 0; round < o.cfg.MaxToolRounds && len(result.ToolCalls) > 0; round++ {
		results := o.tools.ExecuteAll(ctx, result.ToolCalls, callCtx)
		o.recordUsage(ctx, cc, conv.ID, analytics.EventToolExecution, result.Usage)
		allCalls = append(allCalls, result.ToolCalls...)
		allResults = append(allResults, results...)
		msgs = append(msgs,
			chat.Message{Role: chat.RoleAssistant, Content: result.Content, ToolCalls: result.ToolCalls},
			chat.Message{Role: chat.RoleTool, ToolResults: results},
		)
		result, err = o.generator.Generate(ctx, msgs, opts)
		if err != nil {
			return ChatResult{}, fmt.Errorf("generate reply after tools: %w", err)
		}
	}
	if len(result.ToolCalls) > 0 {
		o.logger.Info("tool round limit reached, pending calls not executed",
			slog.String("conversation_id", conv.ID),
			slog.Int("pending_calls", len(result.ToolCalls)),
		)
		allCalls = append(allCalls, result.ToolCalls...)
	}

	usage := result.Usage
	reply, err := o.store.AddMessage(ctx, message.Input{
		ConversationID: conv.ID,
		Role:           chat.RoleAssistant,
		Content:        result.Content,
		ToolCalls:      allCalls,
		ToolResults:    allResults,
		Tokens:         &usage,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("persist assistant message: %w", err)
	}

	o.recordUsage(ctx, cc, conv.ID, analytics.EventMessage, usage)
	if o.cfg.TitleGeneration && len(history) <= 1 && conv.Title == "" {
		o.generateTitle(ctx, cc.TenantID, conv.ID, text)
	}

	return ChatResult{Message: reply, ConversationID: conv.ID, ToolsExecuted: allResults}, nil
}

// History returns a conversation with its latest messages.
func (o *Orchestrator) History(ctx context.Context, tenantID, conversationID string, limit int) (conversation.Conversation, []message.Message, error) {
	conv, err := o.store.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return conversation.Conversation{}, nil, err
	}
	msgs, err := o.store.RecentMessages(ctx, conv.ID, limit)
	if err != nil {
		return conversation.Conversation{}, nil, fmt.Errorf("load history: %w", err)
	}
	return conv, msgs, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, cc ChatContext) (conversation.Conversation, error) {
	if cc.ConversationID != "" {
		return o.store.GetByID(ctx, cc.TenantID, cc.ConversationID)
	}
	conv, err := o.store.GetOrCreate(ctx, cc.TenantID, cc.SessionID, cc.UserID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("resolve conversation: %w", err)
	}
	return conv, nil
}

func (o *Orchestrator) customPrompt(ctx context.Context, tenantID string) string {
	if o.prompts == nil {
		return ""
	}
	prompt, err := o.prompts.CustomPrompt(ctx, tenantID)
	if err != nil {
		o.logger.Warn("load custom prompt failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return ""
	}
	return prompt
}

// recordUsage emits one event per executed tool round and one per reply.
func (o *Orchestrator) recordUsage(ctx context.Context, cc ChatContext, conversationID string, typ analytics.EventType, usage chat.Usage) {
	if o.sink == nil {
		return
	}
	event := analytics.UsageEvent{
		TenantID:       cc.TenantID,
		SessionID:      cc.SessionID,
		UserID:         cc.UserID,
		ConversationID: conversationID,
		Type:           typ,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
	}
	err := o.tasks.Go(ctx, "usage_event", func(ctx context.Context) error {
		return o.sink.RecordMessageUsage(ctx, event)
	})
	if err != nil {
		o.logger.Warn("usage event not scheduled", slog.Any("error", err))
	}
}

func (o *Orchestrator) generateTitle(ctx context.Context, tenantID, conversationID, firstMessage string) {
	err := o.tasks.Go(ctx, "conversation_title", func(ctx context.Context) error {
		res, err := o.generator.Generate(ctx,
			[]chat.Message{{Role: chat.RoleUser, Content: chat.TitlePrompt(firstMessage)}},
			chat.Options{MaxTokens: titleMaxTokens},
		)
		if err != nil {
			return fmt.Errorf("generate title: %w", err)
		}
		title := NormalizeTitle(res.Content)
		if title == "" {
			return nil
		}
		return o.store.UpdateTitle(ctx, tenantID, conversationID, title)
	})
	if err != nil {
		o.logger.Warn("title generation not scheduled", slog.Any("error", err))
	}
}

var spaces = regexp.MustCompile(`\s+`)

// NormalizeTitle trims, strips surrounding quotes, collapses whitespace and caps the length.
func NormalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`“”‘’")
	title = spaces.ReplaceAllString(strings.TrimSpace(title), " ")
	if utf8.RuneCountInString(title) > titleMaxChars {
		title = strings.TrimSpace(string([]rune(title)[:titleMaxChars]))
	}
	return title
}
