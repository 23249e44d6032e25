package eval

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/trace"
)

// costLimitEvaluator caps Trace.CostUSD. An unknown cost (nil, because the
// model's pricing is unknown) fails closed rather than passing vacuously
// (§9): a reliability harness that cannot account for spend must not report
// success.
type costLimitEvaluator struct{}

func (e *costLimitEvaluator) Evaluate(_ context.Context, _ EvalContext, t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	if a.CostLimit == nil {
		return EvalResult{}, fmt.Errorf("cost_limit assertion missing fields")
	}
	if t.CostUSD == nil {
		return EvalResult{
			AssertionIndex: idx,
			AssertionType:  a.Type,
			Passed:         false,
			Score:          0,
			Weight:         a.EffectiveWeight(),
			Required:       a.Required,
			Details:        fmt.Sprintf("cost_limit: trial cost is unknown (no pricing for %q), failing closed", t.Model),
		}, nil
	}
	passed := *t.CostUSD <= a.CostLimit.MaxUSD
	return EvalResult{
		AssertionIndex: idx,
		AssertionType:  a.Type,
		Passed:         passed,
		Score:          boolScore(passed),
		Weight:         a.EffectiveWeight(),
		Required:       a.Required,
		Details:        fmt.Sprintf("cost_limit: $%.6f <= $%.6f: %v", *t.CostUSD, a.CostLimit.MaxUSD, passed),
	}, nil
}

// latencyLimitEvaluator caps Trace.LatencySeconds.
type latencyLimitEvaluator struct{}

func (e *latencyLimitEvaluator) Evaluate(_ context.Context, _ EvalContext, t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	if a.LatencyLimit == nil {
		return EvalResult{}, fmt.Errorf("latency_limit assertion missing fields")
	}
	passed := t.LatencySeconds <= a.LatencyLimit.MaxSeconds
	return EvalResult{
		AssertionIndex: idx,
		AssertionType:  a.Type,
		Passed:         passed,
		Score:          boolScore(passed),
		Weight:         a.EffectiveWeight(),
		Required:       a.Required,
		Details:        fmt.Sprintf("latency_limit: %.3fs <= %.3fs: %v", t.LatencySeconds, a.LatencyLimit.MaxSeconds, passed),
	}, nil
}
