package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/trace"
)

const (
	defaultJudgeModel           = "claude-haiku-4"
	defaultJudgeK               = 3
	defaultJudgeThreshold       = 0.8
	defaultJudgeTemperature     = 0.0
	defaultToolCallContextBytes = 500
)

// judgeEvaluator backs AssertionJudge: k independent LLM calls score the
// trial against each declared criterion on a 5-point anchored scale, and
// per-criterion medians are combined into a weighted mean (§4.3.7, §9 open
// question resolved in favor of median over mean to blunt one outlier vote).
type judgeEvaluator struct{}

// judgeVote is one parsed judge response.
type judgeVote struct {
	scores    map[string]float64 // criterion name -> normalized [0,1] score
	discarded bool
	reason    string
}

func (e *judgeEvaluator) Evaluate(ctx context.Context, ec EvalContext, t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	if a.Judge == nil {
		return EvalResult{}, fmt.Errorf("judge assertion missing fields")
	}
	if ec.JudgeAdapter == nil {
		return EvalResult{}, fmt.Errorf("judge assertion requires a configured judge adapter")
	}
	fields := a.Judge

	judgeModel := firstNonEmpty(fields.JudgeModel, ec.JudgeConfig.Model, defaultJudgeModel)
	threshold := firstNonNilFloat(defaultJudgeThreshold, fields.Threshold, ec.JudgeConfig.Threshold)
	temperature := firstNonNilFloat(defaultJudgeTemperature, ec.JudgeConfig.Temperature)

	k := fields.K
	if k == 0 {
		k = ec.JudgeConfig.K
	}
	if k == 0 {
		k = defaultJudgeK
	}
	if k%2 == 0 {
		ec.Telemetry.Logger.Warn(ctx, "judge: even k is not odd, bumping by one to avoid ties", "k", k)
		k++
	}
	if k == 1 {
		ec.Telemetry.Logger.Warn(ctx, "judge: k=1 gives no cross-vote consensus", "assertion_index", idx)
	}

	systemPrompt, userPrompt := buildJudgePrompt(ec, t, fields)

	votes := make([]judgeVote, 0, k)
	var totalCost float64
	var haveCost bool
	for i := 0; i < k; i++ {
		vote, costUSD, err := e.castVote(ctx, ec.JudgeAdapter, judgeModel, temperature, systemPrompt, userPrompt, fields.Criteria)
		if err != nil {
			ec.Telemetry.Logger.Warn(ctx, "judge: vote call failed", "vote_index", i, "error", err.Error())
			votes = append(votes, judgeVote{discarded: true, reason: err.Error()})
			continue
		}
		votes = append(votes, vote)
		if costUSD != nil {
			totalCost += *costUSD
			haveCost = true
		}
	}

	valid := make([]judgeVote, 0, len(votes))
	for _, v := range votes {
		if !v.discarded {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return EvalResult{
			AssertionIndex: idx,
			AssertionType:  a.Type,
			Passed:         false,
			Score:          0,
			Weight:         a.EffectiveWeight(),
			Required:       a.Required,
			Details:        "judge had no valid votes",
			Metadata: map[string]any{
				"judge_model": judgeModel,
				"judge_k":     k,
			},
		}, nil
	}

	medians := medianPerCriterion(valid, fields.Criteria)
	score := weightedMean(medians, fields.Criteria)
	passed := score >= threshold

	metadata := map[string]any{
		"judge_model":       judgeModel,
		"judge_k":           k,
		"judge_votes_valid": len(valid),
		"judge_votes_total": len(votes),
		"criterion_medians": medians,
	}
	if haveCost {
		metadata["judge_cost_usd"] = totalCost
	}

	return EvalResult{
		AssertionIndex: idx,
		AssertionType:  a.Type,
		Passed:         passed,
		Score:          score,
		Weight:         a.EffectiveWeight(),
		Required:       a.Required,
		Details:        fmt.Sprintf("judge: weighted score %.3f vs threshold %.3f (%d/%d valid votes)", score, threshold, len(valid), len(votes)),
		Metadata:       metadata,
	}, nil
}

func (e *judgeEvaluator) castVote(ctx context.Context, a adapter.Adapter, judgeModel string, temperature float64, systemPrompt, userPrompt string, criteria []scenario.JudgeCriterion) (judgeVote, *float64, error) {
	temp := temperature
	cfg := model.Config{Model: judgeModel, Temperature: &temp}

	verdictTool := model.ToolDefinition{
		Name:        "submit_verdict",
		Description: "Submit your per-criterion scores for this evaluation.",
		InputSchema: verdictSchema(criteria),
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: userPrompt},
	}

	result, err := a.SendTurn(ctx, messages, []model.ToolDefinition{verdictTool}, cfg)
	if err != nil {
		return judgeVote{}, nil, err
	}

	cost := adapter.EstimateCost(judgeModel, result.Usage.InputTokens, result.Usage.OutputTokens)

	for _, tc := range result.ToolCalls {
		if tc.Name != "submit_verdict" {
			continue
		}
		vote, err := parseVoteArguments(tc.Arguments, criteria)
		if err != nil {
			return judgeVote{discarded: true, reason: err.Error()}, cost, nil
		}
		return vote, cost, nil
	}

	// The model ignored the tool and answered in text; fall back to
	// increasingly permissive JSON extraction from the assistant content.
	vote, err := parseVoteText(result.AssistantContent, criteria)
	if err != nil {
		return judgeVote{discarded: true, reason: err.Error()}, cost, nil
	}
	return vote, cost, nil
}

// verdictSchema builds a JSON Schema requiring one numeric 1-5 field per
// criterion under "criteria".
func verdictSchema(criteria []scenario.JudgeCriterion) []byte {
	props := make(map[string]any, len(criteria))
	required := make([]string, 0, len(criteria))
	for _, c := range criteria {
		props[c.Name] = map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     5,
			"description": c.Description,
		}
		required = append(required, c.Name)
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"criteria": map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		},
		"required": []string{"criteria"},
	}
	data, _ := json.Marshal(schema)
	return data
}

type voteArguments struct {
	Criteria map[string]float64 `json:"criteria"`
}

func parseVoteArguments(args map[string]any, criteria []scenario.JudgeCriterion) (judgeVote, error) {
	raw, ok := args["criteria"].(map[string]any)
	if !ok {
		return judgeVote{}, fmt.Errorf("vote arguments missing \"criteria\" object")
	}
	return voteFromRawCriteria(raw, criteria)
}

// parseVoteText extracts a vote from free-text model output via three
// fallback strategies, in order of strictness: the whole response is JSON;
// a brace-balanced JSON object is embedded somewhere in the response; a
// fenced ```json code block contains the object. A response matching none
// of these is discarded.
func parseVoteText(content string, criteria []scenario.JudgeCriterion) (judgeVote, error) {
	if v, ok := tryParseVoteJSON(content, criteria); ok {
		return v, nil
	}
	if sub := extractBraceBalanced(content); sub != "" {
		if v, ok := tryParseVoteJSON(sub, criteria); ok {
			return v, nil
		}
	}
	if block := extractFencedJSON(content); block != "" {
		if v, ok := tryParseVoteJSON(block, criteria); ok {
			return v, nil
		}
	}
	return judgeVote{}, fmt.Errorf("could not extract a valid verdict JSON object from judge response")
}

func tryParseVoteJSON(s string, criteria []scenario.JudgeCriterion) (judgeVote, bool) {
	var parsed voteArguments
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &parsed); err != nil {
		return judgeVote{}, false
	}
	raw := make(map[string]any, len(parsed.Criteria))
	for k, v := range parsed.Criteria {
		raw[k] = v
	}
	vote, err := voteFromRawCriteria(raw, criteria)
	if err != nil {
		return judgeVote{}, false
	}
	return vote, true
}

func voteFromRawCriteria(raw map[string]any, criteria []scenario.JudgeCriterion) (judgeVote, error) {
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		v, ok := raw[c.Name]
		if !ok {
			return judgeVote{}, fmt.Errorf("vote missing score for criterion %q", c.Name)
		}
		n, ok := toFloat(v)
		if !ok {
			return judgeVote{}, fmt.Errorf("criterion %q score is not numeric: %v", c.Name, v)
		}
		if n < 1 || n > 5 {
			return judgeVote{}, fmt.Errorf("criterion %q score %v out of 1-5 range", c.Name, n)
		}
		// Anchor scale: raw 1-5 maps linearly onto [0,1].
		scores[c.Name] = (n - 1) / 4
	}
	return judgeVote{scores: scores}, nil
}

func extractBraceBalanced(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractFencedJSON(s string) string {
	const fence = "```"
	start := strings.Index(s, fence)
	if start == -1 {
		return ""
	}
	rest := s[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, fence)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func medianPerCriterion(votes []judgeVote, criteria []scenario.JudgeCriterion) map[string]float64 {
	medians := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		var values []float64
		for _, v := range votes {
			if score, ok := v.scores[c.Name]; ok {
				values = append(values, score)
			}
		}
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		medians[c.Name] = medianOf(values)
	}
	return medians
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func weightedMean(medians map[string]float64, criteria []scenario.JudgeCriterion) float64 {
	var weightedSum, weightSum float64
	for _, c := range criteria {
		score, ok := medians[c.Name]
		if !ok {
			continue
		}
		w := c.Weight
		if w == 0 {
			w = 1
		}
		weightedSum += score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

func buildJudgePrompt(ec EvalContext, t *trace.Trace, fields *scenario.JudgeFields) (string, string) {
	var sb strings.Builder
	sb.WriteString("You are an impartial evaluator scoring a single AI agent transcript against named criteria.\n")
	sb.WriteString("Score each criterion on this 5-point anchored scale:\n")
	sb.WriteString("1 = completely fails the criterion\n")
	sb.WriteString("2 = mostly fails, with minor redeeming qualities\n")
	sb.WriteString("3 = partially satisfies the criterion\n")
	sb.WriteString("4 = mostly satisfies, with minor shortcomings\n")
	sb.WriteString("5 = fully satisfies the criterion\n")
	sb.WriteString("Call submit_verdict with an integer 1-5 for every criterion. If you cannot call the tool, reply with a single JSON object of the same shape instead.\n")
	if fields.CustomPrompt != "" {
		sb.WriteString(fields.CustomPrompt)
		sb.WriteString("\n")
	}

	var ub strings.Builder
	if fields.IncludeSystemPrompt && ec.Scenario != nil && ec.Scenario.SystemPrompt() != "" {
		fmt.Fprintf(&ub, "Agent system prompt:\n%s\n\n", ec.Scenario.SystemPrompt())
	}
	ub.WriteString("Criteria:\n")
	for _, c := range fields.Criteria {
		fmt.Fprintf(&ub, "- %s: %s\n", c.Name, c.Description)
	}
	ub.WriteString("\nTranscript:\n")
	view := trace.Flatten(t)
	maxBytes := ec.JudgeConfig.ToolCallContextBytes
	if maxBytes == 0 {
		maxBytes = defaultToolCallContextBytes
	}
	for _, turn := range view.Turns {
		fmt.Fprintf(&ub, "[%v] %v\n", turn["role"], turn["content"])
		for _, call := range toolCallsOf(turn) {
			fmt.Fprintf(&ub, "  tool_call: %v(%s)\n", call["name"], truncateJSON(call["arguments"], maxBytes))
		}
	}

	return sb.String(), ub.String()
}

// toolCallsOf extracts a turn's "tool_calls" entry (as produced by
// trace.Flatten) back to its concrete []map[string]any shape.
func toolCallsOf(turn map[string]any) []map[string]any {
	calls, _ := turn["tool_calls"].([]map[string]any)
	return calls
}

// truncateJSON marshals v and truncates the result to maxBytes, appending
// an ellipsis marker when truncation occurred.
func truncateJSON(v any, maxBytes int) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unmarshalable arguments: %v>", err)
	}
	if len(data) <= maxBytes {
		return string(data)
	}
	return string(data[:maxBytes]) + "...(truncated)"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstNonNilFloat returns the value of the first non-nil pointer in
// overrides (checked most-specific first), or def if all are nil.
func firstNonNilFloat(def float64, overrides ...*float64) float64 {
	for _, v := range overrides {
		if v != nil {
			return *v
		}
	}
	return def
}
