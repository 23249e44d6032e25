package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jherleth/salvo-ai/model"
)

func sampleTrace() *Trace {
	cost := 0.0123
	return &Trace{
		TraceID:      "trace-1",
		ScenarioHash: "hash-1",
		Provider:     "anthropic",
		Model:        "claude-sonnet-4",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be terse"},
			{Role: model.RoleUser, Content: "what's the weather?"},
			{Role: model.RoleAssistant, Content: "", ToolCalls: []model.ToolCall{
				{ID: "tc1", Name: "get_weather", Arguments: map[string]any{"city": "nyc"}},
			}},
			{Role: model.RoleToolResult, Content: `{"temp":72}`, ToolCallID: "tc1", ToolName: "get_weather"},
			{Role: model.RoleAssistant, Content: "It's 72F."},
		},
		ToolCalls:      []model.ToolCall{{ID: "tc1", Name: "get_weather", Arguments: map[string]any{"city": "nyc"}}},
		Usage:          model.TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
		LatencySeconds: 1.5,
		CostUSD:        &cost,
		TurnCount:      2,
		FinishReason:   model.FinishReasonStop,
		MaxTurnsHit:    false,
		Timestamp:      time.Now(),
	}
}

func TestFlatten_ResponseIsLastAssistantMessage(t *testing.T) {
	view := Flatten(sampleTrace())
	assert.Equal(t, "It's 72F.", view.Response["content"])
}

func TestFlatten_ToolCallsFlattened(t *testing.T) {
	view := Flatten(sampleTrace())
	assert.Len(t, view.ToolCalls, 1)
	assert.Equal(t, "get_weather", view.ToolCalls[0]["name"])
}

func TestFlatten_MetadataIncludesCostAndUsage(t *testing.T) {
	view := Flatten(sampleTrace())
	assert.InDelta(t, 0.0123, view.Metadata["cost_usd"], 1e-9)
	assert.Equal(t, 100, view.Metadata["input_tokens"])
	assert.Equal(t, 120, view.Metadata["total_tokens"])
}

func TestFlatten_NilCostRendersAsNil(t *testing.T) {
	tr := sampleTrace()
	tr.CostUSD = nil
	view := Flatten(tr)
	assert.Nil(t, view.Metadata["cost_usd"])
}

func TestAsMap_ExposesFourTopLevelNames(t *testing.T) {
	m := Flatten(sampleTrace()).AsMap()
	for _, key := range []string{"response", "turns", "tool_calls", "metadata"} {
		assert.Contains(t, m, key)
	}
}
