// Package recorder implements Recording, Replay, and Re-evaluation (§4.6):
// a Recorder captures a redacted, schema-versioned snapshot of a Trace for
// later offline inspection without re-running the scenario; a Replayer
// renders a recorded trace read-only; a Re-evaluator re-scores a recorded
// trace against the scenario's current assertions, refusing where the
// scenario has drifted or the recording lacks the content an assertion
// needs.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/eval"
	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/redact"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/scorer"
	"github.com/jherleth/salvo-ai/telemetry"
	"github.com/jherleth/salvo-ai/trace"
)

// RecordedTraceSchemaVersion is bumped whenever RecordedTrace's shape
// changes in a way a Replayer or Re-evaluator must know about.
const RecordedTraceSchemaVersion = 1

// ContentExcludedSentinel replaces message content and tool-call arguments
// in a metadata_only recording (§4.6/§6). Roles, tool names, tool-call
// IDs, turn counts, and usage are preserved untouched.
const ContentExcludedSentinel = "[CONTENT_EXCLUDED]"

// Mode controls how much of a Trace's content a recording retains.
type Mode string

const (
	// ModeFull retains the full (redacted) message transcript and tool
	// calls.
	ModeFull Mode = "full"

	// ModeMetadataOnly replaces message content and tool-call arguments
	// with ContentExcludedSentinel, keeping roles, tool names, tool-call
	// IDs and the usage, cost, latency, and turn-count metadata. A
	// metadata_only recording cannot be re-evaluated against any
	// assertion that inspects message content.
	ModeMetadataOnly Mode = "metadata_only"
)

// RecordedTrace is the schema-versioned, possibly content-stripped
// snapshot persisted by a Recorder.
type RecordedTrace struct {
	SchemaVersion int       `json:"schema_version"`
	Mode          Mode      `json:"mode"`
	ScenarioHash  string    `json:"scenario_hash"`
	RecordedAt    time.Time `json:"recorded_at"`

	// Trace is always present. For ModeMetadataOnly its Messages and
	// ToolCalls are kept in order, but their content and arguments are
	// replaced with ContentExcludedSentinel; the scalar metadata fields
	// (usage, cost, latency, turn count, finish reason) are unchanged.
	Trace *trace.Trace `json:"trace"`
}

// Recorder builds RecordedTrace snapshots.
type Recorder struct {
	redactor *redact.Redactor
}

// New constructs a Recorder using redactor for content redaction.
func New(redactor *redact.Redactor) *Recorder {
	return &Recorder{redactor: redactor}
}

// Record builds a RecordedTrace from t in the given mode. The input Trace
// is never mutated.
func (r *Recorder) Record(t *trace.Trace, mode Mode) *RecordedTrace {
	redacted := r.redactor.ApplyToTrace(t)

	if mode == ModeMetadataOnly {
		stripped := *redacted
		stripped.Messages = stripContentFromMessages(redacted.Messages)
		stripped.ToolCalls = stripArgumentsFromToolCalls(redacted.ToolCalls)
		redacted = &stripped
	}

	return &RecordedTrace{
		SchemaVersion: RecordedTraceSchemaVersion,
		Mode:          mode,
		ScenarioHash:  t.ScenarioHash,
		RecordedAt:    time.Now().UTC(),
		Trace:         redacted,
	}
}

// stripContentFromMessages replaces every message's Content and nested
// tool-call Arguments with ContentExcludedSentinel, preserving Role,
// ToolCallID, ToolName, and each tool call's ID/Name.
func stripContentFromMessages(messages []model.Message) []model.Message {
	if messages == nil {
		return nil
	}
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		out[i] = model.Message{
			Role:       m.Role,
			Content:    ContentExcludedSentinel,
			ToolCalls:  stripArgumentsFromToolCalls(m.ToolCalls),
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		}
	}
	return out
}

// stripArgumentsFromToolCalls replaces each tool call's Arguments with the
// sentinel, preserving ID and Name.
func stripArgumentsFromToolCalls(calls []model.ToolCall) []model.ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = model.ToolCall{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: map[string]any{"_": ContentExcludedSentinel},
		}
	}
	return out
}

// Replayer renders a previously recorded trace read-only: no adapter is
// constructed and nothing is re-run.
type Replayer struct{}

// RenderedView is a recorded trace annotated for display, marking every
// cost/latency figure as historical rather than freshly measured.
type RenderedView struct {
	Banner           string
	CostLabel        string
	LatencyLabel     string
	FlattenedView    trace.FlattenedView
	RecordedAt       time.Time
	Mode             Mode
}

// Render renders rt for display. There is no network or adapter activity
// here — replay only ever reads what was already recorded.
func (Replayer) Render(rt *RecordedTrace) RenderedView {
	costLabel := "unknown (recorded)"
	if rt.Trace.CostUSD != nil {
		costLabel = fmt.Sprintf("$%.6f (recorded)", *rt.Trace.CostUSD)
	}
	return RenderedView{
		Banner:        "[REPLAY]",
		CostLabel:     costLabel,
		LatencyLabel:  fmt.Sprintf("%.3fs (recorded)", rt.Trace.LatencySeconds),
		FlattenedView: trace.Flatten(rt.Trace),
		RecordedAt:    rt.RecordedAt,
		Mode:          rt.Mode,
	}
}

// RevalResult is the outcome of re-evaluating a recorded trace.
type RevalResult struct {
	Refused       bool
	RefusedReason string

	EvalResults []eval.EvalResult
	Score       scorer.Result

	// SkippedAssertions lists the indices of assertions that could not be
	// re-evaluated (metadata_only recording lacking required content) and
	// were excluded from scoring rather than failing the whole
	// re-evaluation outright.
	SkippedAssertions []int
}

// Reevaluator re-scores a RecordedTrace against a scenario's current
// assertions.
type Reevaluator struct {
	Registry *eval.Registry

	// JudgeAdapter and JudgeConfig are forwarded to judge assertions,
	// which always require a fresh LLM call even when full message
	// content was recorded.
	JudgeAdapter adapter.Adapter
	JudgeConfig  eval.JudgeConfig
	Telemetry    telemetry.Bundle
}

// NewReevaluator constructs a Reevaluator using the given evaluator
// registry.
func NewReevaluator(registry *eval.Registry, judgeAdapter adapter.Adapter, judgeConfig eval.JudgeConfig, bundle telemetry.Bundle) *Reevaluator {
	return &Reevaluator{Registry: registry, JudgeAdapter: judgeAdapter, JudgeConfig: judgeConfig, Telemetry: bundle}
}

// contentDependentTypes is the set of assertion types that require message
// content or tool-call arguments a metadata_only recording has stripped.
// tool_sequence and tool_called inspect only tool names and call order,
// both of which survive stripping, so they remain evaluable regardless of
// recording mode.
var contentDependentTypes = map[scenario.AssertionType]bool{
	scenario.AssertionJMESPath:       true,
	scenario.AssertionOutputContains: true,
	scenario.AssertionJudge:          true,
}

// Reevaluate re-scores rt against s's current assertions. It refuses
// outright if s.Hash() no longer matches the hash recorded at capture time
// (the scenario has drifted since this trace was recorded, so its
// assertions no longer describe what actually ran). Within a
// metadata_only recording, individual content-dependent assertions are
// skipped rather than causing a full refusal, since cost_limit and
// latency_limit assertions remain meaningful even without content.
func (r *Reevaluator) Reevaluate(ctx context.Context, s *scenario.Scenario, rt *RecordedTrace) (*RevalResult, error) {
	if rt.ScenarioHash != s.Hash() {
		return &RevalResult{
			Refused:       true,
			RefusedReason: fmt.Sprintf("scenario has changed since recording: recorded hash %s, current hash %s", rt.ScenarioHash, s.Hash()),
		}, nil
	}

	ec := eval.EvalContext{Scenario: s, JudgeAdapter: r.JudgeAdapter, JudgeConfig: r.JudgeConfig, Telemetry: r.Telemetry}

	assertions := s.Assertions()
	var toEvaluate []scenario.Assertion
	var toEvaluateIndex []int
	var skipped []int

	for i, a := range assertions {
		if rt.Mode == ModeMetadataOnly && contentDependentTypes[a.Type] {
			skipped = append(skipped, i)
			continue
		}
		toEvaluate = append(toEvaluate, a)
		toEvaluateIndex = append(toEvaluateIndex, i)
	}

	results, err := r.Registry.Evaluate(ctx, ec, rt.Trace, toEvaluate)
	if err != nil {
		return nil, err
	}
	// Re-tag each result with its original assertion index, since
	// toEvaluate is a filtered, re-indexed slice.
	for i := range results {
		results[i].AssertionIndex = toEvaluateIndex[i]
	}

	scored := scorer.Score(results, s.Threshold())

	return &RevalResult{
		EvalResults:       results,
		Score:             scored,
		SkippedAssertions: skipped,
	}, nil
}
