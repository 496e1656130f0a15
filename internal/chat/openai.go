package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOpenAIMaxTokens = 4096
)

// OpenAIProvider calls the Chat Completions API. Any OpenAI-compatible base URL works.
type OpenAIProvider struct {
	client openai.Client
	cfg    ProviderSettings
}

func NewOpenAIProvider(cfg ProviderSettings, httpClient *http.Client) *OpenAIProvider {
	cfg = cfg.withDefaults(DefaultOpenAIModel, DefaultOpenAIMaxTokens)
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
	return &OpenAIProvider{client: openai.NewClient(opts...), cfg: cfg}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, opts Options) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.cfg.model(opts)),
		Messages:    openAIMessages(SystemPrompt(opts.SystemPrompt), messages),
		Temperature: openai.Float(p.cfg.temperature(opts)),
		MaxTokens:   openai.Int(int64(p.cfg.maxTokens(opts))),
	}
	for _, tool := range opts.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.ParametersMap()),
			},
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("openai: no choices returned")
	}
	msg := resp.Choices[0].Message
	var calls []ToolCall
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return Result{}, fmt.Errorf("openai: decode arguments of %s: %w", tc.Function.Name, err)
			}
		}
		id := tc.ID
		if id == "" {
			id = NewToolCallID()
		}
		calls = append(calls, ToolCall{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return Result{
		Content:      msg.Content,
		ToolCalls:    calls,
		FinishReason: finishReason(calls),
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
		Model:    resp.Model,
		Provider: p.Name(),
	}, nil
}

func openAIMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case RoleTool:
			for _, r := range m.ToolResults {
				payload, _ := json.Marshal(toolResultPayload(r))
				out = append(out, openai.ToolMessage(string(payload), r.ToolCallID))
			}
		}
	}
	return out
}
