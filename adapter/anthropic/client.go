// Package anthropic provides an adapter.Adapter implementation backed by
// the Anthropic Claude Messages API, using
// github.com/anthropics/anthropic-sdk-go. Per §4.1 this adapter (a) extracts
// the system prompt as a top-level parameter, (b) declares tool shape via
// input_schema, (c) wraps tool results in user-role messages carrying a
// tool_result content block, and (d) supplies a default max_tokens when the
// caller does not.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/model"
)

// DefaultMaxTokens is supplied when neither Options.MaxTokens nor
// model.Config.MaxTokens specify a cap, per §4.1(d).
const DefaultMaxTokens = 4096

// MessagesClient captures the subset of the Anthropic SDK client used by
// the adapter, so callers can pass either a real client or a mock in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures optional Anthropic adapter behavior.
type Options struct {
	// DefaultModel is used when model.Config.Model is empty.
	DefaultModel string

	// MaxTokens sets the default completion cap when a request does not
	// specify one. Falls back to DefaultMaxTokens when zero.
	MaxTokens int

	// Temperature is used when a request does not specify one.
	Temperature float64
}

// Client implements adapter.Adapter on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

var _ adapter.Adapter = (*Client)(nil)

// New builds an Anthropic-compatible adapter from the provided Messages
// client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic adapter: messages client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("anthropic adapter: default model is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = DefaultMaxTokens
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTok: maxTok, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic adapter: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, Options{DefaultModel: defaultModel})
}

// SendTurn issues one Messages.New request and translates the response into
// an AdapterTurnResult.
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
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isTransient(err) {
			return model.AdapterTurnResult{}, adapter.NewTransient(err)
		}
		return model.AdapterTurnResult{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg)
}

func (c *Client) buildParams(messages []model.Message, tools []model.ToolDefinition, cfg model.Config) (sdk.MessageNewParams, error) {
	modelID := cfg.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	conversation, system, err := encodeMessages(messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if cfg.Temperature != nil {
		params.Temperature = sdk.Float(*cfg.Temperature)
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	// Config.Seed has no Anthropic Messages API equivalent; its presence is
	// never an error here (§9), it is simply not forwarded.
	if encoded, err := encodeTools(tools); err != nil {
		return sdk.MessageNewParams{}, err
	} else if len(encoded) > 0 {
		params.Tools = encoded
	}
	return params, nil
}

func encodeMessages(messages []model.Message) ([]sdk.MessageParam, string, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	var system strings.Builder

	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			if m.Content != "" {
				if system.Len() > 0 {
					system.WriteString("\n\n")
				}
				system.WriteString(m.Content)
			}
		case model.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case model.RoleToolResult:
			// Per §4.1(c), tool results are wrapped in a user-role message
			// carrying a tool_result content block.
			content, err := toolResultText(m.Content)
			if err != nil {
				return nil, "", err
			}
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, content, false)))
		default:
			return nil, "", fmt.Errorf("anthropic adapter: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, "", errors.New("anthropic adapter: at least one user/assistant message is required")
	}
	return conversation, system.String(), nil
}

func toolResultText(content string) (string, error) {
	return content, nil
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("anthropic adapter: tool %q schema: %w", def.Name, err)
			}
		}
		tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, def.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, tool)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (model.AdapterTurnResult, error) {
	if msg == nil {
		return model.AdapterTurnResult{}, errors.New("anthropic adapter: response message is nil")
	}
	var result model.AdapterTurnResult
	var content strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(block.Text)
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			result.ToolCalls = append(result.ToolCalls, model.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	result.AssistantContent = content.String()
	result.Usage = model.TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	result.FinishReason = translateStopReason(string(msg.StopReason), len(result.ToolCalls) > 0)
	return result, nil
}

func translateStopReason(reason string, hasToolCalls bool) model.FinishReason {
	switch reason {
	case "tool_use":
		return model.FinishReasonToolUse
	case "max_tokens":
		return model.FinishReasonLength
	case "stop_sequence", "end_turn", "":
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
