package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/useembed/useembed/internal/analytics"
	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/chat"
	"github.com/useembed/useembed/internal/prune"
	"github.com/useembed/useembed/internal/registry"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxItems       = 20
	DefaultMaxConcurrency = 8
	DefaultMaxTextBytes   = prune.DefaultMaxBytes
)

type Config struct {
	Timeout           time.Duration
	MaxItems          int
	MaxConcurrency    int
	// MaxTextBytes bounds plain-text response bodies handed to the model.
	MaxTextBytes      int
	ValidateArguments bool
}

// CallContext scopes tool execution to a tenant and conversation.
// Tools, when set, resolves tool names to catalog ids.
type CallContext struct {
	TenantID       string
	ConversationID string
	Tools          map[string]catalog.Tool
}

// Invoker turns tool calls into outbound HTTP requests against registered APIs.
type Invoker struct {
	store   APIStore
	sink    analytics.Sink
	client  *http.Client
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	tokens map[string]cachedTokenSource
}

type Option func(*Invoker)

func WithHTTPClient(client *http.Client) Option {
	return func(i *Invoker) { i.client = client }
}

func WithMetrics(m *Metrics) Option {
	return func(i *Invoker) { i.metrics = m }
}

func New(log *slog.Logger, store APIStore, sink analytics.Sink, cfg Config, opts ...Option) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = DefaultMaxTextBytes
	}
	i := &Invoker{
		store:  store,
		sink:   sink,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: log.With(slog.String("service", "invoker")),
		tokens: map[string]cachedTokenSource{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ExecuteAll runs calls concurrently and returns results in call order.
func (i *Invoker) ExecuteAll(ctx context.Context, calls []chat.ToolCall, cc CallContext) []chat.ToolResult {
	results := make([]chat.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(i.cfg.MaxConcurrency)
	for idx, call := range calls {
		g.Go(func() error {
			results[idx] = i.Execute(ctx, call, cc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Execute runs one tool call. Failures are reported in the result, never returned.
func (i *Invoker) Execute(ctx context.Context, call chat.ToolCall, cc CallContext) chat.ToolResult {
	start := time.Now()
	result := chat.ToolResult{ToolCallID: call.ID, Name: call.Name}
	fail := func(err error, method string) chat.ToolResult {
		result.Result = nil
		result.Error = err.Error()
		result.DurationMS = time.Since(start).Milliseconds()
		i.metrics.observe(method, time.Since(start).Seconds(), true)
		i.logger.Warn("tool call failed",
			slog.String("tool", call.Name),
			slog.String("tenant_id", cc.TenantID),
			slog.Any("error", err),
		)
		return result
	}

	t, err := i.resolve(ctx, call.Name, cc)
	if err != nil {
		return fail(err, "")
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if i.cfg.ValidateArguments {
		if err := validateArguments(t, args); err != nil {
			return fail(err, "")
		}
	}

	req, logURL, err := i.buildRequest(ctx, t, args)
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err), "")
	}
	callLog := analytics.APICallLog{
		TenantID:       cc.TenantID,
		ConversationID: cc.ConversationID,
		APIID:          t.api.ID,
		EndpointID:     t.endpoint.ID,
		Method:         t.endpoint.Method,
		URL:            logURL,
	}

	resp, err := i.client.Do(req)
	if err != nil {
		callLog.DurationMS = time.Since(start).Milliseconds()
		callLog.Error = err.Error()
		i.record(ctx, callLog)
		return fail(err, t.endpoint.Method)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	var payload any
	if err == nil {
		payload, err = parseBody(body)
	}
	callLog.StatusCode = resp.StatusCode
	callLog.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		callLog.Error = err.Error()
		i.record(ctx, callLog)
		return fail(fmt.Errorf("read response: %w", err), t.endpoint.Method)
	}
	i.record(ctx, callLog)
	i.metrics.observe(t.endpoint.Method, time.Since(start).Seconds(), false)

	result.Result = shape(payload, i.cfg.MaxItems, prune.Budget{MaxBytes: i.cfg.MaxTextBytes})
	result.DurationMS = callLog.DurationMS
	return result
}

func (i *Invoker) record(ctx context.Context, log analytics.APICallLog) {
	if i.sink == nil {
		return
	}
	if err := i.sink.RecordAPICall(ctx, log); err != nil {
		i.logger.Warn("record api call failed", slog.Any("error", err))
	}
}

// buildRequest returns the request and the URL to log, which omits credentials placed in the query.
func (i *Invoker) buildRequest(ctx context.Context, t target, args map[string]any) (*http.Request, string, error) {
	path := t.endpoint.Path
	query := url.Values{}
	headers := map[string]string{}
	for _, p := range t.endpoint.Parameters {
		value, ok := args[p.Name]
		if !ok || value == nil {
			if p.Default == nil {
				continue
			}
			value = p.Default
		}
		switch p.In {
		case registry.InPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(stringify(value)))
		case registry.InQuery:
			query.Set(p.Name, stringify(value))
		case registry.InHeader:
			headers[p.Name] = stringify(value)
		}
	}
	rawURL := t.api.BaseURL + path
	if encoded := query.Encode(); encoded != "" {
		rawURL += "?" + encoded
	}

	var body io.Reader
	switch t.endpoint.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, "", err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, t.endpoint.Method, rawURL, body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.api.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err := i.applyAuth(ctx, req, t.api); err != nil {
		return nil, "", err
	}
	return req, rawURL, nil
}

// parseBody decodes JSON, falling back to the raw text. An empty body is null.
func parseBody(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(body), nil
	}
	return v, nil
}

// shape truncates long arrays and tells the model how many items exist.
// Oversized text bodies keep their head and tail.
func shape(payload any, maxItems int, text prune.Budget) any {
	if s, ok := payload.(string); ok {
		return prune.Clip(s, "response body", text)
	}
	items, ok := payload.([]any)
	if !ok || len(items) <= maxItems {
		return payload
	}
	return map[string]any{
		"items":   items[:maxItems],
		"total":   len(items),
		"message": fmt.Sprintf("Showing first %d of %d items. Ask for more if needed.", maxItems, len(items)),
	}
}
