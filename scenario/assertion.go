package scenario

// AssertionType discriminates the closed set of assertion kinds (§3). Per
// the "Dynamic assertion dispatch by string type" redesign note, Assertion
// is a tagged variant: each type-specific field group is its own struct
// pointer, non-nil only for the matching Type, so the Evaluator Registry
// can dispatch on Type without reflection.
type AssertionType string

const (
	// AssertionJMESPath evaluates a JMESPath expression against the
	// flattened trace view.
	AssertionJMESPath AssertionType = "jmespath"

	// AssertionToolSequence compares observed tool-call names to an
	// expected sequence under EXACT/IN_ORDER/ANY_ORDER semantics.
	AssertionToolSequence AssertionType = "tool_sequence"

	// AssertionToolCalled is sugar for a single-tool ANY_ORDER
	// tool_sequence assertion.
	AssertionToolCalled AssertionType = "tool_called"

	// AssertionOutputContains is sugar for a jmespath "contains" assertion
	// over the final response content.
	AssertionOutputContains AssertionType = "output_contains"

	// AssertionCostLimit caps Trace.cost_usd.
	AssertionCostLimit AssertionType = "cost_limit"

	// AssertionLatencyLimit caps Trace.latency_seconds.
	AssertionLatencyLimit AssertionType = "latency_limit"

	// AssertionJudge delegates scoring to an LLM judge with k-vote
	// consensus.
	AssertionJudge AssertionType = "judge"
)

// Operator is the comparison operator for a JMESPath assertion.
type Operator string

const (
	OperatorEq      Operator = "eq"
	OperatorNe      Operator = "ne"
	OperatorGt      Operator = "gt"
	OperatorGte     Operator = "gte"
	OperatorLt      Operator = "lt"
	OperatorLte     Operator = "lte"
	OperatorContains Operator = "contains"
	OperatorRegex   Operator = "regex"
	OperatorExists  Operator = "exists"
)

// ToolSequenceMode controls how a tool_sequence assertion compares the
// observed tool-call sequence to the expected one.
type ToolSequenceMode string

const (
	// ModeExact requires observed == expected (length and order).
	ModeExact ToolSequenceMode = "EXACT"

	// ModeInOrder requires expected to be a subsequence of observed.
	ModeInOrder ToolSequenceMode = "IN_ORDER"

	// ModeAnyOrder requires observed to be a multiset-superset of expected.
	ModeAnyOrder ToolSequenceMode = "ANY_ORDER"
)

type (
	// JMESPathFields holds the type-specific fields of a jmespath assertion.
	JMESPathFields struct {
		Expression string
		Operator   Operator
		Value      any
	}

	// ToolSequenceFields holds the type-specific fields of a tool_sequence
	// assertion.
	ToolSequenceFields struct {
		Sequence []string
		Mode     ToolSequenceMode
	}

	// ToolCalledFields holds the type-specific field of a tool_called
	// assertion.
	ToolCalledFields struct {
		Tool string
	}

	// OutputContainsFields holds the type-specific field of an
	// output_contains assertion.
	OutputContainsFields struct {
		Value string
	}

	// CostLimitFields holds the type-specific field of a cost_limit
	// assertion.
	CostLimitFields struct {
		MaxUSD float64
	}

	// LatencyLimitFields holds the type-specific field of a latency_limit
	// assertion.
	LatencyLimitFields struct {
		MaxSeconds float64
	}

	// JudgeCriterion is one named, weighted axis within a judge assertion.
	JudgeCriterion struct {
		Name        string
		Description string
		Weight      float64
	}

	// JudgeFields holds the type-specific fields of a judge assertion. The
	// three-tier config merge (per-assertion > project > hard-coded
	// defaults) is performed by eval/judge, not here; Fields carries only
	// what was explicitly set on the assertion.
	JudgeFields struct {
		Criteria            []JudgeCriterion
		JudgeModel          string
		K                   int
		IncludeSystemPrompt bool
		CustomPrompt        string
		Threshold           *float64
	}
)

// Assertion is the canonical form every declared assertion normalizes to
// before reaching the core (§3). Exactly one of the type-specific field
// pointers is non-nil, matching Type.
type Assertion struct {
	Type     AssertionType
	Weight   float64
	Required bool

	JMESPath       *JMESPathFields       `json:",omitempty"`
	ToolSequence   *ToolSequenceFields   `json:",omitempty"`
	ToolCalled     *ToolCalledFields     `json:",omitempty"`
	OutputContains *OutputContainsFields `json:",omitempty"`
	CostLimit      *CostLimitFields      `json:",omitempty"`
	LatencyLimit   *LatencyLimitFields   `json:",omitempty"`
	Judge          *JudgeFields          `json:",omitempty"`
}

// EffectiveWeight returns Weight, defaulting to 1.0 when unset (Weight's
// zero value, 0, is not a meaningful assertion weight).
func (a Assertion) EffectiveWeight() float64 {
	if a.Weight == 0 {
		return 1.0
	}
	return a.Weight
}
