// Package scorer implements the weighted Scorer (§4.4): it combines a
// trial's []eval.EvalResult into a single [0,1] score plus a pass/fail
// verdict, honoring hard-fail short-circuit semantics.
package scorer

import "github.com/jherleth/salvo-ai/eval"

// Result is the outcome of scoring one trial's assertion results.
type Result struct {
	Score       float64
	Passed      bool
	HardFailed  bool
	FailedIndex int // index into the input results of the hard-failing assertion, -1 if none
}

// Score combines results per §4.4: a required assertion that fails
// short-circuits to a score of 0 regardless of every other assertion's
// outcome (hard-fail). Otherwise the score is the weighted mean of every
// result's Score; a zero total weight (every assertion has weight 0,
// which scenario.New never itself produces but which a caller could
// construct) scores as 0 rather than dividing by zero. threshold is the
// scenario's pass/fail cutoff against the computed score.
func Score(results []eval.EvalResult, threshold float64) Result {
	for i, r := range results {
		if r.Required && !r.Passed {
			return Result{
				Score:       0,
				Passed:      false,
				HardFailed:  true,
				FailedIndex: i,
			}
		}
	}

	var weightedSum, weightSum float64
	for _, r := range results {
		weightedSum += r.Score * r.Weight
		weightSum += r.Weight
	}

	score := 0.0
	if weightSum > 0 {
		score = weightedSum / weightSum
	}

	return Result{
		Score:       score,
		Passed:      score >= threshold,
		HardFailed:  false,
		FailedIndex: -1,
	}
}
