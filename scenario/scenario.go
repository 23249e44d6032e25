// Package scenario defines the Scenario and Assertion data model (§3). A
// Scenario is immutable after construction — any change is a new value —
// and is produced by an external loader (the structured scenario-file
// contract in §6) that has already resolved shorthand assertions to
// canonical form and validated provider extras. The core only ever consumes
// a *Scenario built via New.
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jherleth/salvo-ai/model"
)

// DefaultTurnCap is used when a Scenario does not specify one.
const DefaultTurnCap = 10

// MinTurnCap and MaxTurnCap bound Scenario.TurnCap.
const (
	MinTurnCap = 1
	MaxTurnCap = 100
)

// DefaultThreshold is used when a Scenario does not specify a pass
// threshold.
const DefaultThreshold = 0.8

// Scenario is an immutable, fully-validated scenario ready for execution.
// Construct one with New; there is no exported way to mutate a Scenario in
// place.
type Scenario struct {
	id             string
	provider       string
	model          string
	systemPrompt   string
	userPrompt     string
	turnCap        int
	temperature    *float64
	seed           *int64
	tools          []model.ToolDefinition
	toolMocks      map[string]any
	assertions     []Assertion
	threshold      float64
	extras         model.Extras
	hash           string
}

// Tool pairs a ToolDefinition with the mock payload the Scenario Runner
// substitutes for a real tool execution.
type Tool struct {
	Definition model.ToolDefinition
	Mock       any
}

// New constructs an immutable Scenario. Fields not supplied fall back to
// their documented defaults. Callers (the external scenario loader) are
// responsible for resolving assertion shorthand to canonical form before
// calling New; New itself only requires id, provider and model,
// defaults/bounds TurnCap and Threshold, and computes the content hash.
func New(id, provider, modelID, systemPrompt, userPrompt string, turnCap int, temperature *float64, seed *int64, tools []Tool, assertions []Assertion, threshold float64, extras model.Extras) (*Scenario, error) {
	if id == "" {
		return nil, fmt.Errorf("scenario: id is required")
	}
	if provider == "" {
		return nil, fmt.Errorf("scenario: provider is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("scenario: model is required")
	}
	if turnCap == 0 {
		turnCap = DefaultTurnCap
	}
	if turnCap < MinTurnCap || turnCap > MaxTurnCap {
		return nil, fmt.Errorf("scenario: turn_cap %d out of bounds [%d,%d]", turnCap, MinTurnCap, MaxTurnCap)
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("scenario: threshold %v out of bounds [0,1]", threshold)
	}

	defs := make([]model.ToolDefinition, 0, len(tools))
	mocks := make(map[string]any, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition)
		mocks[t.Definition.Name] = t.Mock
	}

	s := &Scenario{
		id:           id,
		provider:     provider,
		model:        modelID,
		systemPrompt: systemPrompt,
		userPrompt:   userPrompt,
		turnCap:      turnCap,
		temperature:  temperature,
		seed:         seed,
		tools:        defs,
		toolMocks:    mocks,
		assertions:   append([]Assertion(nil), assertions...),
		threshold:    threshold,
		extras:       extras,
	}
	hash, err := computeHash(s)
	if err != nil {
		return nil, fmt.Errorf("scenario: computing content hash: %w", err)
	}
	s.hash = hash
	return s, nil
}

// ID returns the scenario identifier (from filename or explicit name).
func (s *Scenario) ID() string { return s.id }

// Provider returns the provider identifier ("openai", "anthropic", ...).
func (s *Scenario) Provider() string { return s.provider }

// Model returns the provider-specific model identifier.
func (s *Scenario) Model() string { return s.model }

// SystemPrompt returns the system prompt.
func (s *Scenario) SystemPrompt() string { return s.systemPrompt }

// UserPrompt returns the initial user prompt.
func (s *Scenario) UserPrompt() string { return s.userPrompt }

// TurnCap returns the maximum number of turns (default 10, bounded 1-100).
func (s *Scenario) TurnCap() int { return s.turnCap }

// Temperature returns the optional sampling temperature.
func (s *Scenario) Temperature() *float64 { return s.temperature }

// Seed returns the optional determinism seed.
func (s *Scenario) Seed() *int64 { return s.seed }

// Tools returns the ordered tool definitions.
func (s *Scenario) Tools() []model.ToolDefinition {
	return append([]model.ToolDefinition(nil), s.tools...)
}

// ToolMocks returns the tool-name -> mock-payload map for the Tool Mock
// Registry.
func (s *Scenario) ToolMocks() map[string]any {
	out := make(map[string]any, len(s.toolMocks))
	for k, v := range s.toolMocks {
		out[k] = v
	}
	return out
}

// Assertions returns the ordered, canonical-form assertions.
func (s *Scenario) Assertions() []Assertion {
	return append([]Assertion(nil), s.assertions...)
}

// Threshold returns the pass threshold in [0,1].
func (s *Scenario) Threshold() float64 { return s.threshold }

// Extras returns the validated provider-extras map.
func (s *Scenario) Extras() model.Extras {
	if s.extras == nil {
		return nil
	}
	out := make(model.Extras, len(s.extras))
	for k, v := range s.extras {
		out[k] = v
	}
	return out
}

// Hash returns the SHA-256 content hash of the normalized scenario, used for
// drift detection between a recorded trace and a re-evaluation scenario.
func (s *Scenario) Hash() string { return s.hash }

// normalizedForm is the JSON shape hashed by computeHash. Field order is
// fixed by struct field order so Marshal output is deterministic.
type normalizedForm struct {
	ID           string                 `json:"id"`
	Provider     string                 `json:"provider"`
	Model        string                 `json:"model"`
	SystemPrompt string                 `json:"system_prompt"`
	UserPrompt   string                 `json:"user_prompt"`
	TurnCap      int                    `json:"turn_cap"`
	Temperature  *float64               `json:"temperature,omitempty"`
	Seed         *int64                 `json:"seed,omitempty"`
	Tools        []model.ToolDefinition `json:"tools"`
	Assertions   []Assertion            `json:"assertions"`
	Threshold    float64                `json:"threshold"`
	Extras       model.Extras           `json:"extras,omitempty"`
}

func computeHash(s *Scenario) (string, error) {
	form := normalizedForm{
		ID:           s.id,
		Provider:     s.provider,
		Model:        s.model,
		SystemPrompt: s.systemPrompt,
		UserPrompt:   s.userPrompt,
		TurnCap:      s.turnCap,
		Temperature:  s.temperature,
		Seed:         s.seed,
		Tools:        s.tools,
		Assertions:   s.assertions,
		Threshold:    s.threshold,
		Extras:       s.extras,
	}
	data, err := json.Marshal(form)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
