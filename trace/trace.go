// Package trace defines the Trace record produced by the Scenario Runner
// (§3) and the flattened view evaluators query against (§4.3).
package trace

import (
	"time"

	"github.com/jherleth/salvo-ai/model"
)

// Trace is the full record of one trial's multi-turn conversation, tool
// calls, usage, and timing. Content may be redacted or truncated by the
// Redactor before persistence; Trace itself carries whatever content the
// Scenario Runner produced.
type Trace struct {
	// TraceID is a time-sortable (UUIDv7) identifier.
	TraceID string

	// ScenarioHash equals Scenario.Hash() at the moment the trial started
	// (§3 invariant).
	ScenarioHash string

	Provider string
	Model    string

	// Messages is the ordered transcript, including assistant turns and
	// tool_result messages.
	Messages []model.Message

	// ToolCalls is the flat concatenation of tool_calls across assistant
	// turns in emission order (§3 invariant).
	ToolCalls []model.ToolCall

	Usage model.TokenUsage

	LatencySeconds float64

	// CostUSD is nil when the model's pricing is unknown; never zero in
	// that case (§9).
	CostUSD *float64

	TurnCount int

	FinishReason model.FinishReason

	// MaxTurnsHit reports whether the turn cap was reached before a
	// no-tool-call turn.
	MaxTurnsHit bool

	Timestamp time.Time
}

// FlattenedView is the JSON-shaped projection of a Trace used by query
// evaluators (§4.3), exposing four top-level names: response, turns,
// tool_calls, metadata.
type FlattenedView struct {
	Response map[string]any   `json:"response"`
	Turns    []map[string]any `json:"turns"`
	ToolCalls []map[string]any `json:"tool_calls"`
	Metadata map[string]any   `json:"metadata"`
}

// Flatten projects t into the four-name view evaluators query against.
func Flatten(t *Trace) FlattenedView {
	var finalContent string
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == model.RoleAssistant {
			finalContent = t.Messages[i].Content
			break
		}
	}

	turns := make([]map[string]any, 0, len(t.Messages))
	for _, m := range t.Messages {
		turns = append(turns, map[string]any{
			"role":         string(m.Role),
			"content":      m.Content,
			"tool_calls":   toolCallsToMaps(m.ToolCalls),
			"tool_call_id": m.ToolCallID,
			"tool_name":    m.ToolName,
		})
	}

	var costUSD any
	if t.CostUSD != nil {
		costUSD = *t.CostUSD
	}

	return FlattenedView{
		Response: map[string]any{
			"content":       finalContent,
			"finish_reason": string(t.FinishReason),
		},
		Turns:     turns,
		ToolCalls: toolCallsToMaps(t.ToolCalls),
		Metadata: map[string]any{
			"model":          t.Model,
			"provider":       t.Provider,
			"cost_usd":       costUSD,
			"latency_seconds": t.LatencySeconds,
			"input_tokens":   t.Usage.InputTokens,
			"output_tokens":  t.Usage.OutputTokens,
			"total_tokens":   t.Usage.TotalTokens,
			"turn_count":     t.TurnCount,
			"finish_reason":  string(t.FinishReason),
			"max_turns_hit":  t.MaxTurnsHit,
		},
	}
}

// AsMap renders v as a generic map[string]any so evaluators built around
// JSON-shaped query libraries (jmespath) can query it uniformly.
func (v FlattenedView) AsMap() map[string]any {
	return map[string]any{
		"response":   v.Response,
		"turns":      v.Turns,
		"tool_calls": v.ToolCalls,
		"metadata":   v.Metadata,
	}
}

func toolCallsToMaps(calls []model.ToolCall) []map[string]any {
	out := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		out = append(out, map[string]any{
			"id":        c.ID,
			"name":      c.Name,
			"arguments": c.Arguments,
		})
	}
	return out
}
