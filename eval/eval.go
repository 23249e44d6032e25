// Package eval implements the Evaluator Registry (§4.3): one Evaluator per
// scenario.AssertionType, dispatched by type, each producing an EvalResult
// the Scorer later combines into a single trial score.
package eval

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/telemetry"
	"github.com/jherleth/salvo-ai/trace"
)

// JudgeConfig carries project-level defaults for judge assertions (§4.3.7),
// the middle tier of the three-tier merge: per-assertion overrides project,
// project overrides hard-coded defaults.
type JudgeConfig struct {
	Model       string
	K           int
	Temperature *float64
	Threshold   *float64

	// ToolCallContextBytes caps how many bytes of each turn's tool-call
	// arguments are included in the judge context block (§4.3.4 step 2).
	// Zero means defaultToolCallContextBytes.
	ToolCallContextBytes int
}

// EvalContext carries the ambient information an Evaluator needs beyond the
// trace and assertion themselves: the scenario the trial ran (for provider,
// tool definitions, and prompts a judge may want to see), project-level
// judge defaults, and a verbose flag surfaced in EvalResult.Details for
// human debugging.
type EvalContext struct {
	Scenario    *scenario.Scenario
	JudgeConfig JudgeConfig
	Verbose     bool

	// JudgeAdapter is the Adapter used for judge assertions. Nil for every
	// other assertion type, which must not dial out.
	JudgeAdapter adapter.Adapter

	Telemetry telemetry.Bundle
}

// EvalResult is the outcome of evaluating one assertion against one trace.
type EvalResult struct {
	AssertionIndex int
	AssertionType  scenario.AssertionType
	Passed         bool

	// Score is in [0,1]. Boolean evaluators emit 0 or 1; the judge
	// evaluator emits a continuous weighted mean.
	Score float64

	Weight   float64
	Required bool

	Details string

	// Metadata carries evaluator-specific structured detail (e.g. the
	// judge's per-criterion medians and cost). Nil for evaluators with
	// nothing further to report.
	Metadata map[string]any
}

// Evaluator evaluates one assertion against a trace's flattened view.
type Evaluator interface {
	// Evaluate is synchronous; evaluators that never need to make a
	// network call (everything but judge) implement only this method and
	// return immediately.
	Evaluate(ctx context.Context, ec EvalContext, t *trace.Trace, assertionIndex int, a scenario.Assertion) (EvalResult, error)
}

// Registry dispatches an assertion to its Evaluator by AssertionType.
type Registry struct {
	evaluators map[scenario.AssertionType]Evaluator
}

// NewRegistry builds the standard registry: one Evaluator per
// scenario.AssertionType, wired to the five evaluator families.
func NewRegistry(judgeAdapter adapter.Adapter) *Registry {
	jm := &jmespathEvaluator{}
	ts := &toolSequenceEvaluator{}
	return &Registry{
		evaluators: map[scenario.AssertionType]Evaluator{
			scenario.AssertionJMESPath:       jm,
			scenario.AssertionToolSequence:   ts,
			scenario.AssertionToolCalled:     ts,
			scenario.AssertionOutputContains: jm,
			scenario.AssertionCostLimit:      &costLimitEvaluator{},
			scenario.AssertionLatencyLimit:   &latencyLimitEvaluator{},
			scenario.AssertionJudge:          &judgeEvaluator{},
		},
	}
}

// Lookup returns the Evaluator registered for t, or an error if the type is
// unregistered (which should only happen for a malformed Assertion, since
// scenario.New only ever produces the closed set of known types).
func (r *Registry) Lookup(t scenario.AssertionType) (Evaluator, error) {
	ev, ok := r.evaluators[t]
	if !ok {
		return nil, fmt.Errorf("eval: no evaluator registered for assertion type %q", t)
	}
	return ev, nil
}

// Evaluate runs every assertion in s against t, in declaration order.
func (r *Registry) Evaluate(ctx context.Context, ec EvalContext, t *trace.Trace, assertions []scenario.Assertion) ([]EvalResult, error) {
	results := make([]EvalResult, 0, len(assertions))
	for i, a := range assertions {
		ev, err := r.Lookup(a.Type)
		if err != nil {
			return nil, err
		}
		res, err := ev.Evaluate(ctx, ec, t, i, a)
		if err != nil {
			return nil, fmt.Errorf("eval: assertion %d (%s): %w", i, a.Type, err)
		}
		results = append(results, res)
	}
	return results, nil
}
