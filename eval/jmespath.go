package eval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/trace"
)

// jmespathEvaluator backs both AssertionJMESPath and AssertionOutputContains,
// the latter being sugar for a "contains" comparison of the expression
// "response.content" (§4.3.2).
type jmespathEvaluator struct{}

func (e *jmespathEvaluator) Evaluate(_ context.Context, ec EvalContext, t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	switch a.Type {
	case scenario.AssertionOutputContains:
		return e.evaluateOutputContains(t, idx, a)
	default:
		return e.evaluateJMESPath(t, idx, a)
	}
}

func (e *jmespathEvaluator) evaluateOutputContains(t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	if a.OutputContains == nil {
		return EvalResult{}, fmt.Errorf("output_contains assertion missing fields")
	}
	view := trace.Flatten(t).AsMap()
	passed := strings.Contains(fmt.Sprintf("%v", view["response"].(map[string]any)["content"]), a.OutputContains.Value)
	return EvalResult{
		AssertionIndex: idx,
		AssertionType:  a.Type,
		Passed:         passed,
		Score:          boolScore(passed),
		Weight:         a.EffectiveWeight(),
		Required:       a.Required,
		Details:        fmt.Sprintf("response.content contains %q: %v", a.OutputContains.Value, passed),
	}, nil
}

func (e *jmespathEvaluator) evaluateJMESPath(t *trace.Trace, idx int, a scenario.Assertion) (EvalResult, error) {
	if a.JMESPath == nil {
		return EvalResult{}, fmt.Errorf("jmespath assertion missing fields")
	}
	fields := a.JMESPath

	view := trace.Flatten(t).AsMap()
	actual, err := jmespath.Search(fields.Expression, view)
	if err != nil {
		return EvalResult{
			AssertionIndex: idx,
			AssertionType:  a.Type,
			Passed:         false,
			Score:          0,
			Weight:         a.EffectiveWeight(),
			Required:       a.Required,
			Details:        fmt.Sprintf("jmespath expression %q failed to evaluate: %v", fields.Expression, err),
		}, nil
	}

	passed, details, err := compare(fields.Operator, actual, fields.Value)
	if err != nil {
		return EvalResult{
			AssertionIndex: idx,
			AssertionType:  a.Type,
			Passed:         false,
			Score:          0,
			Weight:         a.EffectiveWeight(),
			Required:       a.Required,
			Details:        fmt.Sprintf("jmespath expression %q: %v", fields.Expression, err),
		}, nil
	}

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

// compare applies op to (actual, expected). Ordering operators (gt/gte/
// lt/lte) are defined only for numeric operands; a non-numeric operand is a
// failed assertion, not an evaluation error, since a type mismatch between
// the declared assertion and the observed trace is itself meaningful
// evaluation information (§4.3.2).
func compare(op scenario.Operator, actual, expected any) (bool, string, error) {
	switch op {
	case scenario.OperatorExists:
		exists := actual != nil
		return exists, fmt.Sprintf("exists: %v", exists), nil

	case scenario.OperatorEq:
		eq := valuesEqual(actual, expected)
		return eq, fmt.Sprintf("%v == %v: %v", actual, expected, eq), nil

	case scenario.OperatorNe:
		eq := valuesEqual(actual, expected)
		return !eq, fmt.Sprintf("%v != %v: %v", actual, expected, !eq), nil

	case scenario.OperatorContains:
		switch av := actual.(type) {
		case string:
			ev := fmt.Sprintf("%v", expected)
			ok := strings.Contains(av, ev)
			return ok, fmt.Sprintf("%q contains %q: %v", av, ev, ok), nil
		case []any:
			for _, item := range av {
				if valuesEqual(item, expected) {
					return true, fmt.Sprintf("%v contains %v: true", av, expected), nil
				}
			}
			return false, fmt.Sprintf("%v contains %v: false", av, expected), nil
		default:
			return false, "", fmt.Errorf("contains: actual value %v is neither string nor array", actual)
		}

	case scenario.OperatorRegex:
		pattern, ok := expected.(string)
		if !ok {
			return false, "", fmt.Errorf("regex: expected value must be a string pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, "", fmt.Errorf("regex: invalid pattern %q: %w", pattern, err)
		}
		av := fmt.Sprintf("%v", actual)
		matched := re.MatchString(av)
		return matched, fmt.Sprintf("%q matches /%s/: %v", av, pattern, matched), nil

	case scenario.OperatorGt, scenario.OperatorGte, scenario.OperatorLt, scenario.OperatorLte:
		an, aok := toFloat(actual)
		en, eok := toFloat(expected)
		if !aok || !eok {
			return false, "", fmt.Errorf("%s: both operands must be numeric (got %T, %T)", op, actual, expected)
		}
		var result bool
		switch op {
		case scenario.OperatorGt:
			result = an > en
		case scenario.OperatorGte:
			result = an >= en
		case scenario.OperatorLt:
			result = an < en
		case scenario.OperatorLte:
			result = an <= en
		}
		return result, fmt.Sprintf("%v %s %v: %v", an, op, en, result), nil

	default:
		return false, "", fmt.Errorf("unknown operator %q", op)
	}
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func boolScore(passed bool) float64 {
	if passed {
		return 1
	}
	return 0
}
