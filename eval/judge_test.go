package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/telemetry"
	"github.com/jherleth/salvo-ai/trace"
)

// scriptedJudge returns one scripted AdapterTurnResult per SendTurn call, in
// order.
type scriptedJudge struct {
	results []model.AdapterTurnResult
	errs    []error
	call    int
}

func (s *scriptedJudge) SendTurn(context.Context, []model.Message, []model.ToolDefinition, model.Config) (model.AdapterTurnResult, error) {
	i := s.call
	s.call++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], err
	}
	return model.AdapterTurnResult{}, err
}

func toolVote(criterionName string, score int) model.AdapterTurnResult {
	return model.AdapterTurnResult{
		ToolCalls: []model.ToolCall{
			{
				ID:   "v1",
				Name: "submit_verdict",
				Arguments: map[string]any{
					"criteria": map[string]any{criterionName: float64(score)},
				},
			},
		},
	}
}

func judgeAssertion(k int) scenario.Assertion {
	threshold := 0.7
	return scenario.Assertion{
		Type: scenario.AssertionJudge,
		Judge: &scenario.JudgeFields{
			Criteria:  []scenario.JudgeCriterion{{Name: "helpfulness", Description: "is it helpful", Weight: 1}},
			K:         k,
			Threshold: &threshold,
		},
	}
}

func TestJudgeEvaluator_MedianAcrossToolVotes(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		toolVote("helpfulness", 5),
		toolVote("helpfulness", 4),
		toolVote("helpfulness", 1),
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(3))
	require.NoError(t, err)
	// median of [5,4,1] -> 4 -> (4-1)/4 = 0.75
	assert.InDelta(t, 0.75, res.Score, 1e-9)
	assert.True(t, res.Passed)
}

func TestJudgeEvaluator_TextFallbackWholeJSON(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		{AssistantContent: `{"criteria":{"helpfulness":5}}`},
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(1))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestJudgeEvaluator_TextFallbackBraceBalanced(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		{AssistantContent: `Here is my verdict: {"criteria":{"helpfulness":3}} thanks for asking`},
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
}

func TestJudgeEvaluator_TextFallbackFencedCodeBlock(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		{AssistantContent: "My reasoning...\n```json\n{\"criteria\":{\"helpfulness\":2}}\n```\n"},
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.Score, 1e-9)
}

func TestJudgeEvaluator_NoValidVotesFails(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		{AssistantContent: "I refuse to answer in any parseable format."},
		{AssistantContent: "still nothing parseable"},
		{AssistantContent: "nope"},
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(3))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Details, "no valid votes")
}

func TestJudgeEvaluator_EvenKBumpedToOdd(t *testing.T) {
	adapter := &scriptedJudge{results: []model.AdapterTurnResult{
		toolVote("helpfulness", 5),
		toolVote("helpfulness", 5),
		toolVote("helpfulness", 5),
	}}
	e := &judgeEvaluator{}
	ec := EvalContext{JudgeAdapter: adapter, Telemetry: telemetry.NewNoopBundle()}

	res, err := e.Evaluate(context.Background(), ec, &trace.Trace{}, 0, judgeAssertion(2))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metadata["judge_k"])
}

func TestJudgeEvaluator_RequiresJudgeAdapter(t *testing.T) {
	e := &judgeEvaluator{}
	_, err := e.Evaluate(context.Background(), EvalContext{}, &trace.Trace{}, 0, judgeAssertion(1))
	assert.Error(t, err)
}

func TestBuildJudgePrompt_IncludesToolCallsAndArguments(t *testing.T) {
	tr := &trace.Trace{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "what's the weather in Boston?"},
			{
				Role: model.RoleAssistant,
				ToolCalls: []model.ToolCall{
					{ID: "c1", Name: "get_weather", Arguments: map[string]any{"city": "Boston"}},
				},
			},
			{Role: model.RoleToolResult, Content: "58F and cloudy", ToolCallID: "c1", ToolName: "get_weather"},
			{Role: model.RoleAssistant, Content: "It's 58F and cloudy in Boston."},
		},
	}
	fields := &scenario.JudgeFields{
		Criteria: []scenario.JudgeCriterion{{Name: "accuracy", Description: "is the answer accurate", Weight: 1}},
	}

	_, userPrompt := buildJudgePrompt(EvalContext{}, tr, fields)
	assert.Contains(t, userPrompt, "get_weather")
	assert.Contains(t, userPrompt, "Boston")
}

func TestBuildJudgePrompt_TruncatesLongToolArguments(t *testing.T) {
	tr := &trace.Trace{
		Messages: []model.Message{
			{
				Role: model.RoleAssistant,
				ToolCalls: []model.ToolCall{
					{ID: "c1", Name: "search", Arguments: map[string]any{"query": string(make([]byte, 2000))}},
				},
			},
		},
	}
	fields := &scenario.JudgeFields{Criteria: []scenario.JudgeCriterion{{Name: "x", Description: "x", Weight: 1}}}
	ec := EvalContext{JudgeConfig: JudgeConfig{ToolCallContextBytes: 50}}

	_, userPrompt := buildJudgePrompt(ec, tr, fields)
	assert.Contains(t, userPrompt, "(truncated)")
}
