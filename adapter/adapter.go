// Package adapter defines the provider-agnostic Adapter contract (§4.1) and
// the shared concerns every provider implementation relies on: a
// name-to-Factory registry, retryable-error classification, extras
// validation, cost estimation, and optional request pacing.
package adapter

import (
	"context"

	"github.com/jherleth/salvo-ai/model"
)

// Adapter is the single-operation, provider-agnostic contract the Scenario
// Runner drives. Implementations translate the unified Message/ToolDefinition
// types into a provider's wire format and back.
type Adapter interface {
	// SendTurn issues one model turn given the accumulated messages and the
	// scenario's tool definitions, returning the assistant's content, any
	// requested tool calls, and token usage.
	SendTurn(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, cfg model.Config) (model.AdapterTurnResult, error)
}

// Factory constructs a fresh Adapter instance. The Trial Orchestrator calls
// this once per trial (never reusing an instance across trials) because
// provider clients may cache state that must stay isolated between trials
// (§4.5 Isolation).
type Factory func() (Adapter, error)
