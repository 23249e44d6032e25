package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/eval"
	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/telemetry"
)

// scriptedStubAdapter always answers with a final assistant turn, never
// requesting a tool call, so the runner completes in one turn.
type scriptedStubAdapter struct {
	content string
}

func (s scriptedStubAdapter) SendTurn(context.Context, []model.Message, []model.ToolDefinition, model.Config) (model.AdapterTurnResult, error) {
	return model.AdapterTurnResult{AssistantContent: s.content, FinishReason: model.FinishReasonStop}, nil
}

func newOrchScenario(t *testing.T, assertions []scenario.Assertion) *scenario.Scenario {
	t.Helper()
	s, err := scenario.New("orch-1", "anthropic", "claude-sonnet-4", "", "say hi", 3, nil, nil, nil, assertions, 0, nil)
	require.NoError(t, err)
	return s
}

func passingAssertion() scenario.Assertion {
	return scenario.Assertion{
		Type:           scenario.AssertionOutputContains,
		OutputContains: &scenario.OutputContainsFields{Value: "hi"},
	}
}

func failingRequiredAssertion() scenario.Assertion {
	return scenario.Assertion{
		Type:           scenario.AssertionOutputContains,
		OutputContains: &scenario.OutputContainsFields{Value: "nope"},
		Required:       true,
	}
}

func baseConfig(trials int, factory adapter.Factory) Config {
	return Config{
		Trials:           trials,
		Concurrency:      2,
		MaxRetries:       1,
		RequiredPassRate: 1.0,
		StopOnHardFail:   false,
		AdapterFactory:   factory,
		Telemetry:        telemetry.NewNoopBundle(),
	}
}

func TestRun_AllTrialsPass(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{passingAssertion()})
	cfg := baseConfig(3, func() (adapter.Adapter, error) {
		return scriptedStubAdapter{content: "hi there"}, nil
	})

	res, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, res.Verdict)
	assert.Len(t, res.Trials, 3)
	for _, tr := range res.Trials {
		assert.Equal(t, VerdictPass, tr.Verdict)
	}
}

func TestRun_HardFailStopsEarly(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{failingRequiredAssertion()})
	var launched int32
	cfg := baseConfig(10, func() (adapter.Adapter, error) {
		atomic.AddInt32(&launched, 1)
		return scriptedStubAdapter{content: "hi there"}, nil
	})
	cfg.StopOnHardFail = true
	cfg.Concurrency = 1

	res, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	assert.Equal(t, VerdictHardFail, res.Verdict)
	assert.True(t, res.StoppedEarly)
	assert.Less(t, len(res.Trials), 10)
}

func TestRun_MathematicallyImpossibleStopsEarly(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{
		{Type: scenario.AssertionOutputContains, OutputContains: &scenario.OutputContainsFields{Value: "nope"}},
	})
	cfg := baseConfig(10, func() (adapter.Adapter, error) {
		return scriptedStubAdapter{content: "hi there"}, nil
	})
	cfg.Concurrency = 1
	cfg.RequiredPassRate = 1.0

	res, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, "mathematical-impossibility trigger", res.StopReason)
	assert.Less(t, len(res.Trials), 10)
}

// transientThenOKAdapter fails with a transient error on its first call per
// trial, then succeeds, to exercise the retry-with-backoff path.
type transientThenOKAdapter struct {
	calls *int32
}

func (a transientThenOKAdapter) SendTurn(context.Context, []model.Message, []model.ToolDefinition, model.Config) (model.AdapterTurnResult, error) {
	n := atomic.AddInt32(a.calls, 1)
	if n == 1 {
		return model.AdapterTurnResult{}, adapter.NewTransient(errors.New("temporary provider hiccup"))
	}
	return model.AdapterTurnResult{AssistantContent: "hi there", FinishReason: model.FinishReasonStop}, nil
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{passingAssertion()})
	var calls int32
	cfg := baseConfig(1, func() (adapter.Adapter, error) {
		return transientThenOKAdapter{calls: &calls}, nil
	})
	cfg.MaxRetries = 2

	res, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trials, 1)
	assert.Equal(t, VerdictPass, res.Trials[0].Verdict)
	assert.Equal(t, 2, res.Trials[0].Attempts)
}

func TestRun_NonTransientErrorIsInfraErrorWithoutRetry(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{passingAssertion()})
	var calls int32
	cfg := baseConfig(1, func() (adapter.Adapter, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("permanent misconfiguration")
	})
	cfg.MaxRetries = 3

	res, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trials, 1)
	assert.Equal(t, VerdictInfraError, res.Trials[0].Verdict)
	assert.Equal(t, int32(1), calls, "a non-transient error must not be retried")
}

func TestRun_RespectsConcurrencyBound(t *testing.T) {
	s := newOrchScenario(t, []scenario.Assertion{passingAssertion()})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	cfg := baseConfig(6, func() (adapter.Adapter, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return scriptedStubAdapter{content: "hi there"}, nil
	})
	cfg.Concurrency = 2

	_, err := Run(context.Background(), s, eval.NewRegistry(nil), cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight, 2)
}

func TestAggregate_VerdictPrecedence(t *testing.T) {
	trials := []TrialResult{
		{Verdict: VerdictPass},
		{Verdict: VerdictFail},
		{Verdict: VerdictHardFail},
		{Verdict: VerdictInfraError},
	}
	res := aggregate("s", trials, Config{}, false, "")
	assert.Equal(t, VerdictHardFail, res.Verdict, "a single infra-errored trial must not override a hard fail")

	res = aggregate("s", trials[:3], Config{}, false, "")
	assert.Equal(t, VerdictHardFail, res.Verdict)

	res = aggregate("s", trials[:2], Config{}, false, "")
	assert.Equal(t, VerdictPartial, res.Verdict)

	res = aggregate("s", trials[:1], Config{}, false, "")
	assert.Equal(t, VerdictPass, res.Verdict)
}

func TestAggregate_VerdictPrecedence_AllInfraWithoutAllowInfraIsInfraError(t *testing.T) {
	trials := []TrialResult{
		{Verdict: VerdictInfraError},
		{Verdict: VerdictInfraError},
	}
	res := aggregate("s", trials, Config{AllowInfra: false}, false, "")
	assert.Equal(t, VerdictInfraError, res.Verdict)
}

func TestAggregate_VerdictPrecedence_AllowInfraExcludesInfraTrialsFromBaseSet(t *testing.T) {
	trials := []TrialResult{
		{Verdict: VerdictPass},
		{Verdict: VerdictPass},
		{Verdict: VerdictInfraError},
	}
	res := aggregate("s", trials, Config{AllowInfra: true}, false, "")
	assert.Equal(t, VerdictPass, res.Verdict, "infra trials excluded from base set; remaining trials all passed")
}

func TestAggregate_VerdictPrecedence_AllInfraWithAllowInfraIsStillInfraError(t *testing.T) {
	trials := []TrialResult{
		{Verdict: VerdictInfraError},
		{Verdict: VerdictInfraError},
	}
	res := aggregate("s", trials, Config{AllowInfra: true}, false, "")
	assert.Equal(t, VerdictInfraError, res.Verdict, "an empty base set (everything excluded) has nothing to verdict pass/fail")
}

func TestAggregate_FailureRankingOrdersByCountThenIndex(t *testing.T) {
	trials := []TrialResult{
		{Verdict: VerdictFail, EvalResults: []eval.EvalResult{{AssertionIndex: 2, Passed: false}, {AssertionIndex: 0, Passed: false}}},
		{Verdict: VerdictFail, EvalResults: []eval.EvalResult{{AssertionIndex: 0, Passed: false}}},
	}
	res := aggregate("s", trials, Config{}, false, "")
	require.Len(t, res.FailureRanking, 2)
	assert.Equal(t, 0, res.FailureRanking[0].AssertionIndex)
	assert.Equal(t, 2, res.FailureRanking[0].Count)
	assert.Equal(t, 2, res.FailureRanking[1].AssertionIndex)
	assert.Equal(t, 1, res.FailureRanking[1].Count)
}

func TestPercentiles_NearestRank(t *testing.T) {
	p := percentiles([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	assert.Equal(t, float64(5), p["p50"])
	assert.Equal(t, float64(9), p["p90"])
	assert.Equal(t, float64(10), p["p99"])
}

func TestPercentiles_Empty(t *testing.T) {
	assert.Empty(t, percentiles(nil))
}
