// Package runner implements the Scenario Runner (§4.2): it drives one
// multi-turn trial against an Adapter, injecting mock tool results and
// accumulating usage, latency, and the ordered transcript into a Trace. The
// Runner performs no retry of its own — that is an Orchestrator concern
// (§4.5) — and resolves parallel tool calls within a single assistant turn
// sequentially against the mock registry to keep lookups deterministic
// (§5).
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/mockregistry"
	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/telemetry"
	"github.com/jherleth/salvo-ai/trace"
)

// Runner drives one Scenario trial to completion.
type Runner struct {
	telemetry telemetry.Bundle
}

// New constructs a Runner. Pass telemetry.NewNoopBundle() when observability
// is not wired.
func New(bundle telemetry.Bundle) *Runner {
	return &Runner{telemetry: bundle}
}

// Run drives s to completion against a (already fresh, per-trial) Adapter
// and mock registry, returning the resulting Trace.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario, a adapter.Adapter, mocks *mockregistry.Registry) (*trace.Trace, error) {
	traceID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("runner: generating trace id: %w", err)
	}

	messages := initialMessages(s)
	tools := s.Tools()
	cfg := model.Config{
		Model:       s.Model(),
		Temperature: s.Temperature(),
		Seed:        s.Seed(),
		Extras:      s.Extras(),
	}

	start := time.Now()
	var usage model.TokenUsage
	var flatToolCalls []model.ToolCall
	var lastFinish model.FinishReason
	turnCount := 0
	maxTurnsHit := false

	for turnCount = 0; turnCount < s.TurnCap(); turnCount++ {
		r.telemetry.Logger.Debug(ctx, "runner: sending turn", "scenario_id", s.ID(), "turn", turnCount)
		turnTimeout := cfg.Timeout
		if turnTimeout <= 0 {
			turnTimeout = model.DefaultSendTurnTimeout
		}
		turnCtx, cancelTurn := context.WithTimeout(ctx, turnTimeout)
		result, err := a.SendTurn(turnCtx, messages, tools, cfg)
		cancelTurn()
		if err != nil {
			return nil, err
		}
		usage.InputTokens += result.Usage.InputTokens
		usage.OutputTokens += result.Usage.OutputTokens
		usage.TotalTokens += result.Usage.TotalTokens
		lastFinish = result.FinishReason

		assistantMsg := model.Message{
			Role:      model.RoleAssistant,
			Content:   result.AssistantContent,
			ToolCalls: result.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		flatToolCalls = append(flatToolCalls, result.ToolCalls...)

		if len(result.ToolCalls) == 0 {
			lastFinish = model.FinishReasonStop
			turnCount++
			break
		}

		// Parallel tool calls in a single assistant turn are all resolved
		// before the next SendTurn, sequentially against the mock registry,
		// preserving emission order.
		for _, tc := range result.ToolCalls {
			payload, err := mocks.Lookup(tc.Name)
			if err != nil {
				return nil, err
			}
			messages = append(messages, model.Message{
				Role:       model.RoleToolResult,
				Content:    renderMock(payload),
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	if turnCount >= s.TurnCap() && len(flatToolCalls) > 0 && lastFinish == model.FinishReasonToolUse {
		maxTurnsHit = true
		lastFinish = model.FinishReasonLength
	}

	latency := time.Since(start).Seconds()
	cost := adapter.EstimateCost(s.Model(), usage.InputTokens, usage.OutputTokens)

	return &trace.Trace{
		TraceID:        traceID.String(),
		ScenarioHash:   s.Hash(),
		Provider:       s.Provider(),
		Model:          s.Model(),
		Messages:       messages,
		ToolCalls:      flatToolCalls,
		Usage:          usage,
		LatencySeconds: latency,
		CostUSD:        cost,
		TurnCount:      turnCount,
		FinishReason:   lastFinish,
		MaxTurnsHit:    maxTurnsHit,
		Timestamp:      start.UTC(),
	}, nil
}

func initialMessages(s *scenario.Scenario) []model.Message {
	var messages []model.Message
	if s.SystemPrompt() != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: s.SystemPrompt()})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: s.UserPrompt()})
	return messages
}

// renderMock stringifies a mock payload for inclusion in a tool_result
// message. Strings pass through unchanged; everything else is left to the
// caller's model.Message.Content contract of "text the model can read",
// which for structured payloads means a JSON rendering.
func renderMock(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
