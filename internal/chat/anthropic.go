package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultAnthropicModel     = "claude-3-5-haiku-latest"
	DefaultAnthropicMaxTokens = 4096
)

// AnthropicProvider calls the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    ProviderSettings
}

func NewAnthropicProvider(cfg ProviderSettings, httpClient *http.Client) *AnthropicProvider {
	cfg = cfg.withDefaults(DefaultAnthropicModel, DefaultAnthropicMaxTokens)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, opts Options) (Result, error) {
	system, msgs := anthropicMessages(SystemPrompt(opts.SystemPrompt), messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.model(opts)),
		MaxTokens:   int64(p.cfg.maxTokens(opts)),
		Temperature: anthropic.Float(p.cfg.temperature(opts)),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    msgs,
	}
	for _, tool := range opts.Tools {
		schema := tool.ParametersMap()
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if tool.Parameters != nil {
			input.Required = tool.Parameters.Required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: input,
			},
		})
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic messages: %w", err)
	}
	var (
		text  strings.Builder
		calls []ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return Result{}, fmt.Errorf("anthropic: decode input of %s: %w", block.Name, err)
				}
			}
			id := block.ID
			if id == "" {
				id = NewToolCallID()
			}
			calls = append(calls, ToolCall{ID: id, Name: block.Name, Arguments: args})
		}
	}
	return Result{
		Content:      text.String(),
		ToolCalls:    calls,
		FinishReason: finishReason(calls),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Model:    string(resp.Model),
		Provider: p.Name(),
	}, nil
}

func anthropicMessages(base string, messages []Message) (string, []anthropic.MessageParam) {
	system := []string{base}
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolResults))
			for _, r := range m.ToolResults {
				payload, _ := json.Marshal(toolResultPayload(r))
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, string(payload), r.Error != ""))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return strings.Join(system, "\n\n"), out
}
