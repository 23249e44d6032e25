package eval

import (
	"context"
	"fmt"

	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/trace"
)

// toolSequenceEvaluator backs both AssertionToolSequence and
// AssertionToolCalled, the latter being sugar for a single-tool ANY_ORDER
// sequence assertion (§4.3.3).
type toolSequenceEvaluator struct{}

func (e *toolSequenceEvaluator) Evaluate(_ context.Context, _ EvalContext, t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	var expected []string
	var mode scenario.ToolSequenceMode

	switch a.Type {
	case scenario.AssertionToolCalled:
		if a.ToolCalled == nil {
			return EvalResult{}, fmt.Errorf("tool_called assertion missing fields")
		}
		expected = []string{a.ToolCalled.Tool}
		mode = scenario.ModeAnyOrder
	case scenario.AssertionToolSequence:
		if a.ToolSequence == nil {
			return EvalResult{}, fmt.Errorf("tool_sequence assertion missing fields")
		}
		expected = a.ToolSequence.Sequence
		mode = a.ToolSequence.Mode
	default:
		return EvalResult{}, fmt.Errorf("toolSequenceEvaluator does not handle assertion type %q", a.Type)
	}

	observed := make([]string, len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		observed[i] = tc.Name
	}

	passed, details := evaluateSequence(observed, expected, mode)

	return EvalResult{
		AssertionIndex: idx,
		AssertionType:  a.Type,
		Passed:         passed,
		Score:          boolScore(passed),
		Weight:         a.EffectiveWeight(),
		Required:       a.Required,
		Details:        details,
	}, nil
}

// evaluateSequence implements the EXACT / IN_ORDER / ANY_ORDER containment
// hierarchy (§8 universal invariant: a sequence passing under a stricter
// mode must also pass under every weaker mode — EXACT ⊆ IN_ORDER ⊆
// ANY_ORDER).
func evaluateSequence(observed, expected []string, mode scenario.ToolSequenceMode) (bool, string) {
	switch mode {
	case scenario.ModeExact:
		if len(observed) != len(expected) {
			return false, fmt.Sprintf("EXACT: length mismatch, observed %v vs expected %v", observed, expected)
		}
		for i := range expected {
			if observed[i] != expected[i] {
				return false, fmt.Sprintf("EXACT: mismatch at index %d, observed %v vs expected %v", i, observed, expected)
			}
		}
		return true, fmt.Sprintf("EXACT: observed %v == expected %v", observed, expected)

	case scenario.ModeInOrder:
		ok := isSubsequence(observed, expected)
		return ok, fmt.Sprintf("IN_ORDER: expected %v subsequence of observed %v: %v", expected, observed, ok)

	case scenario.ModeAnyOrder:
		ok := isMultisetSubset(observed, expected)
		return ok, fmt.Sprintf("ANY_ORDER: expected %v contained (any order) in observed %v: %v", expected, observed, ok)

	default:
		return false, fmt.Sprintf("unknown tool_sequence mode %q", mode)
	}
}

// isSubsequence reports whether expected appears in observed as a (not
// necessarily contiguous) subsequence, preserving order.
func isSubsequence(observed, expected []string) bool {
	i := 0
	for _, name := range observed {
		if i == len(expected) {
			break
		}
		if name == expected[i] {
			i++
		}
	}
	return i == len(expected)
}

// isMultisetSubset reports whether every name in expected occurs in
// observed at least as many times as it occurs in expected.
func isMultisetSubset(observed, expected []string) bool {
	counts := make(map[string]int, len(observed))
	for _, name := range observed {
		counts[name]++
	}
	for _, name := range expected {
		if counts[name] == 0 {
			return false
		}
		counts[name]--
	}
	return true
}
