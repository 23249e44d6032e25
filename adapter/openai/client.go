// Package openai provides an adapter.Adapter implementation backed by an
// OpenAI-compatible chat/tool completions API, using
// github.com/openai/openai-go. Tool-call arguments arrive from this API as
// JSON text and are parsed into the unified model.ToolCall.Arguments map
// here, per §4.1.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/model"
)

// ChatClient captures the subset of the openai-go client used by the
// adapter, so callers can pass either a real client or a mock in tests.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client implements adapter.Adapter on top of OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

var _ adapter.Adapter = (*Client)(nil)

// New builds an OpenAI-compatible adapter from the given chat client and
// default model identifier.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai adapter: chat client is required")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("openai adapter: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// client, reading OPENAI_API_KEY indirectly via the caller-supplied apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai adapter: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, defaultModel)
}

// SendTurn issues one Chat Completions request and translates the result
// into an AdapterTurnResult.
func (c *Client) SendTurn(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, cfg model.Config) (model.AdapterTurnResult, error) {
	for _, t := range tools {
		if err := adapter.ValidateToolSchema(t); err != nil {
			return model.AdapterTurnResult{}, adapter.NewUnavailable(err)
		}
	}
	params, err := c.buildParams(messages, tools, cfg)
	if err != nil {
		return model.AdapterTurnResult{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isTransient(err) {
			return model.AdapterTurnResult{}, adapter.NewTransient(err)
		}
		return model.AdapterTurnResult{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp)
}

func (c *Client) buildParams(messages []model.Message, tools []model.ToolDefinition, cfg model.Config) (sdk.ChatCompletionNewParams, error) {
	modelID := cfg.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	encoded, err := encodeMessages(messages)
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    modelID,
		Messages: encoded,
	}
	if cfg.Temperature != nil {
		params.Temperature = sdk.Float(*cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(cfg.MaxTokens))
	}
	if cfg.Seed != nil {
		// OpenAI-compatible APIs support a best-effort determinism seed;
		// Anthropic-compatible adapters have no equivalent parameter and
		// silently ignore Config.Seed instead (§9).
		params.Seed = sdk.Int(*cfg.Seed)
	}
	if encodedTools := encodeTools(tools); len(encodedTools) > 0 {
		params.Tools = encodedTools
	}
	return params, nil
}

func encodeMessages(messages []model.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			out = append(out, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			asst := sdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = sdk.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encode tool call %q arguments: %w", tc.Name, err)
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case model.RoleToolResult:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("openai adapter: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai adapter: at least one message is required")
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) []sdk.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out
}

func translateResponse(resp *sdk.ChatCompletion) (model.AdapterTurnResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return model.AdapterTurnResult{}, errors.New("openai adapter: response has no choices")
	}
	choice := resp.Choices[0]
	result := model.AdapterTurnResult{
		AssistantContent: choice.Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		FinishReason: translateFinishReason(choice.FinishReason, len(choice.Message.ToolCalls) > 0),
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return model.AdapterTurnResult{}, fmt.Errorf("openai adapter: tool call %q arguments are not valid JSON: %w", tc.Function.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return result, nil
}

func translateFinishReason(reason string, hasToolCalls bool) model.FinishReason {
	switch reason {
	case "tool_calls":
		return model.FinishReasonToolUse
	case "length":
		return model.FinishReasonLength
	case "content_filter":
		return model.FinishReasonContentFilter
	case "stop", "":
		if hasToolCalls {
			return model.FinishReasonToolUse
		}
		return model.FinishReasonStop
	default:
		return model.FinishReasonStop
	}
}

func isTransient(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return apiErr.StatusCode >= 500
	}
	return false
}
