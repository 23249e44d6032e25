// Package mockregistry implements the Tool Mock Registry (§4.2): a
// read-only, in-memory map from tool name to the canned response payload
// declared in the scenario. It is safe to share across concurrent trials
// because it never mutates after construction (§5 Shared resources).
package mockregistry

import "fmt"

// ErrToolMockMissing is returned by Lookup when the model requested a tool
// that has no declared mock. Per §7 this is a non-retryable infra error
// that fails the owning trial; the error carries both the offending tool
// name and the full set of defined mocks so the failure is actionable.
type ErrToolMockMissing struct {
	// Tool is the name the model requested.
	Tool string

	// Defined lists every tool name this registry does have a mock for.
	Defined []string
}

func (e *ErrToolMockMissing) Error() string {
	return fmt.Sprintf("mockregistry: no mock defined for tool %q (defined: %v)", e.Tool, e.Defined)
}

// Registry maps tool name to mock response payload. Construct one per
// Scenario and never mutate it afterward.
type Registry struct {
	mocks map[string]any
	names []string
}

// New builds a Registry from a name->payload map taken from the scenario's
// ordered ToolDefinition list. The map is copied so later mutation of the
// caller's map cannot affect already-constructed registries.
func New(mocks map[string]any) *Registry {
	r := &Registry{mocks: make(map[string]any, len(mocks))}
	for name, payload := range mocks {
		r.mocks[name] = payload
		r.names = append(r.names, name)
	}
	return r
}

// Lookup returns the mock payload for name, or an *ErrToolMockMissing
// wrapping the set of defined mock names when name is undeclared.
func (r *Registry) Lookup(name string) (any, error) {
	payload, ok := r.mocks[name]
	if !ok {
		return nil, &ErrToolMockMissing{Tool: name, Defined: append([]string(nil), r.names...)}
	}
	return payload, nil
}
