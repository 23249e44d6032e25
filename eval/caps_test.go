package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/trace"
)

func TestCostLimitEvaluator_WithinBudget(t *testing.T) {
	cost := 0.05
	e := &costLimitEvaluator{}
	a := scenario.Assertion{Type: scenario.AssertionCostLimit, CostLimit: &scenario.CostLimitFields{MaxUSD: 0.10}}
	res, err := e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{CostUSD: &cost}, 0, a)
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestCostLimitEvaluator_OverBudget(t *testing.T) {
	cost := 0.50
	e := &costLimitEvaluator{}
	a := scenario.Assertion{Type: scenario.AssertionCostLimit, CostLimit: &scenario.CostLimitFields{MaxUSD: 0.10}}
	res, err := e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{CostUSD: &cost}, 0, a)
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestCostLimitEvaluator_UnknownCostFailsClosed(t *testing.T) {
	e := &costLimitEvaluator{}
	a := scenario.Assertion{Type: scenario.AssertionCostLimit, CostLimit: &scenario.CostLimitFields{MaxUSD: 100}}
	res, err := e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{CostUSD: nil, Model: "unknown-model"}, 0, a)
	require.NoError(t, err)
	assert.False(t, res.Passed, "an unknown cost must never pass, even against a generous limit")
}

func TestLatencyLimitEvaluator(t *testing.T) {
	e := &latencyLimitEvaluator{}
	a := scenario.Assertion{Type: scenario.AssertionLatencyLimit, LatencyLimit: &scenario.LatencyLimitFields{MaxSeconds: 5}}

	res, err := e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{LatencySeconds: 3}, 0, a)
	require.NoError(t, err)
	assert.True(t, res.Passed)

	res, err = e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{LatencySeconds: 10}, 0, a)
	require.NoError(t, err)
	assert.False(t, res.Passed)
}
