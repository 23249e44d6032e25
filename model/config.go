package model

import "time"

// Extras is a free-form provider-extras mapping. Validated by
// adapter.ValidateExtras against a secret-key blocklist and byte/key-count
// caps before a Scenario is considered usable.
type Extras map[string]any

// Config carries per-call invocation parameters for Adapter.SendTurn. It is
// derived from the owning Scenario once per trial and reused for every turn
// of that trial.
type Config struct {
	// Model is the provider-specific model identifier.
	Model string

	// Temperature is optional sampling temperature; nil means "use the
	// provider/adapter default". An explicit zero is forwarded.
	Temperature *float64

	// Seed is an optional determinism seed. OpenAI-compatible adapters
	// forward it; Anthropic-compatible adapters ignore it silently (the
	// Messages API has no seed parameter). Its mere presence never errors.
	Seed *int64

	// MaxTokens caps output tokens. Anthropic-compatible adapters supply a
	// default (4096) when this is zero.
	MaxTokens int

	// Timeout bounds a single SendTurn call made by the Scenario Runner.
	// Zero means DefaultSendTurnTimeout.
	Timeout time.Duration

	// Extras carries validated provider-specific extras.
	Extras Extras
}

// DefaultSendTurnTimeout is the default per-SendTurn timeout per §5.
const DefaultSendTurnTimeout = 120 * time.Second
