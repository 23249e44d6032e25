package redact

import (
	"encoding/json"

	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/trace"
)

// ApplyToTrace returns a deep copy of t with every string-valued field in
// messages and tool-call arguments redacted and length-capped. The input
// Trace is never mutated, so callers can keep using the original
// (unredacted) copy for in-memory scoring while persisting only the
// redacted copy.
func (r *Redactor) ApplyToTrace(t *trace.Trace) *trace.Trace {
	out := *t
	out.Messages = make([]model.Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = r.redactMessage(m)
	}
	out.ToolCalls = make([]model.ToolCall, len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		out.ToolCalls[i] = r.redactToolCall(tc)
	}
	return &out
}

func (r *Redactor) redactMessage(m model.Message) model.Message {
	out := m
	out.Content = TruncateMessage(r.RedactString(m.Content))
	out.ToolCalls = make([]model.ToolCall, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		out.ToolCalls[i] = r.redactToolCall(tc)
	}
	return out
}

func (r *Redactor) redactToolCall(tc model.ToolCall) model.ToolCall {
	out := tc
	out.Arguments = r.redactArguments(tc.Arguments)
	return out
}

// redactArguments redacts every string value found in a tool-call argument
// map, recursing into nested maps/slices. Non-string scalars (numbers,
// bools) pass through unchanged.
func (r *Redactor) redactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return TruncateResponse(r.RedactString(val))
	case map[string]any:
		return r.redactArguments(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

// redactJSONRawMessage is a convenience used when a payload must be
// round-tripped through JSON before redaction can walk it (e.g. tool
// definition schemas embedded for audit purposes).
func (r *Redactor) redactJSONRawMessage(raw json.RawMessage) json.RawMessage {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []byte(`"` + r.RedactString(string(raw)) + `"`)
	}
	redacted := r.redactValue(v)
	data, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return data
}
