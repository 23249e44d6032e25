// Package orchestrator implements the Trial Orchestrator (§4.5): it runs
// N trials of a Scenario concurrently across a bounded worker pool, each
// trial against its own freshly constructed Adapter, retrying transient
// adapter errors with exponential backoff and full jitter, persisting
// traces when a store is configured, and aggregating per-trial results
// into a single suite verdict.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jherleth/salvo-ai/adapter"
	"github.com/jherleth/salvo-ai/eval"
	"github.com/jherleth/salvo-ai/mockregistry"
	"github.com/jherleth/salvo-ai/runner"
	"github.com/jherleth/salvo-ai/scenario"
	"github.com/jherleth/salvo-ai/scorer"
	"github.com/jherleth/salvo-ai/telemetry"
	"github.com/jherleth/salvo-ai/trace"
)

// Verdict is a trial or suite's overall disposition.
type Verdict string

const (
	VerdictPass       Verdict = "PASS"
	VerdictFail       Verdict = "FAIL"
	VerdictPartial    Verdict = "PARTIAL"
	VerdictHardFail   Verdict = "HARD_FAIL"
	VerdictInfraError Verdict = "INFRA_ERROR"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryCapDelay  = 30 * time.Second
)

// TraceStore is the persistence hook trials call after completion. The
// orchestrator never constructs one itself (that is storage's concern);
// it is optional — a nil store simply means traces are not persisted.
// runID/trialIndex/status populate the run_id-keyed manifest entry (§6).
type TraceStore interface {
	SaveTrace(ctx context.Context, runID string, trialIndex int, status string, t *trace.Trace) error
}

// Config controls one suite run.
type Config struct {
	// RunID identifies this suite run for the storage manifest and index.
	// A random time-sortable ID is generated when empty.
	RunID string

	Trials int

	// Concurrency caps the number of trials in flight at once. Zero means
	// the default of min(Trials, runtime.NumCPU(), 4).
	Concurrency int

	MaxRetries int

	// RequiredPassRate is the fraction of trials (in [0,1]) that must pass.
	// It is used only by the mathematical-impossibility early-stop trigger;
	// zero disables that trigger. The suite verdict does not depend on it.
	RequiredPassRate float64

	// StopOnHardFail stops launching new trials as soon as one trial
	// hard-fails, since a single hard fail already fixes the suite
	// verdict at HARD_FAIL regardless of any trial still to run.
	StopOnHardFail bool

	// AllowInfra changes how infra-errored trials factor into the suite
	// verdict: when true, they are excluded from the base set the
	// precedence rules are computed over (§4.5/§8); when false (default),
	// the suite only verdicts INFRA_ERROR if every trial infra-errored.
	AllowInfra bool

	AdapterFactory adapter.Factory
	Mocks          *mockregistry.Registry
	JudgeAdapter   adapter.Adapter
	JudgeConfig    eval.JudgeConfig

	Store     TraceStore
	Telemetry telemetry.Bundle
}

// TrialResult is one trial's outcome.
type TrialResult struct {
	TrialIndex  int
	TraceID     string
	Trace       *trace.Trace
	EvalResults []eval.EvalResult
	Score       scorer.Result
	Verdict     Verdict

	// Err is set only for an INFRA_ERROR trial: every retry attempt
	// exhausted, or a non-transient adapter error occurred.
	Err error

	Attempts int
}

// SuiteResult aggregates every trial in a suite run.
type SuiteResult struct {
	ScenarioID string
	Trials     []TrialResult
	Verdict    Verdict

	// LatencyPercentiles is computed over successful trials only (those
	// that produced a Trace, regardless of pass/fail), keyed "p50"/"p90"/
	// "p99".
	LatencyPercentiles map[string]float64

	// FailureRanking counts, across all trials, how many times each
	// assertion index was the cause of a non-pass result, most frequent
	// first. Index -1 is never present; a trial with no failing
	// assertion contributes nothing.
	FailureRanking []FailureCount

	StoppedEarly bool
	StopReason   string
}

// FailureCount is one entry in a SuiteResult's failure ranking.
type FailureCount struct {
	AssertionIndex int
	Count          int
}

// Run executes cfg.Trials trials of s, returning the aggregated suite
// result.
func Run(ctx context.Context, s *scenario.Scenario, registry *eval.Registry, cfg Config) (*SuiteResult, error) {
	if cfg.RunID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: generating run id: %w", err)
		}
		cfg.RunID = id.String()
	}

	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = defaultConcurrency(cfg.Trials)
	}

	results := make([]TrialResult, cfg.Trials)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	stopped := false
	stopReason := ""

	for i := 0; i < cfg.Trials; i++ {
		mu.Lock()
		halt := stopped
		mu.Unlock()
		if halt {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(trialIndex int) {
			defer wg.Done()
			defer func() { <-sem }()

			res := runTrial(runCtx, trialIndex, s, registry, cfg)

			mu.Lock()
			defer mu.Unlock()
			results[trialIndex] = res
			finished := make([]TrialResult, 0, len(results))
			for _, r := range results {
				if r.Verdict != "" {
					finished = append(finished, r)
				}
			}
			if !stopped {
				if cfg.StopOnHardFail && res.Verdict == VerdictHardFail {
					stopped = true
					stopReason = "hard-failure trigger"
					cancel()
				} else if mathematicallyImpossible(finished, cfg) {
					stopped = true
					stopReason = "mathematical-impossibility trigger"
					cancel()
				}
			}
		}(i)
	}

	wg.Wait()

	completed := make([]TrialResult, 0, cfg.Trials)
	for _, r := range results {
		if r.TraceID != "" || r.Err != nil {
			completed = append(completed, r)
		}
	}

	return aggregate(s.ID(), completed, cfg, stopped, stopReason), nil
}

func defaultConcurrency(trials int) int {
	c := runtime.NumCPU()
	if c > 4 {
		c = 4
	}
	if trials < c {
		c = trials
	}
	if c < 1 {
		c = 1
	}
	return c
}

// mathematicallyImpossible reports whether, given the trials completed so
// far, no arrangement of the remaining trials could bring the suite's
// pass rate up to cfg.RequiredPassRate.
func mathematicallyImpossible(completed []TrialResult, cfg Config) bool {
	if cfg.RequiredPassRate <= 0 {
		return false
	}
	total := cfg.Trials
	done := len(completed)
	remaining := total - done
	passed := 0
	for _, r := range completed {
		if r.Verdict == VerdictPass {
			passed++
		}
	}
	bestPossible := float64(passed+remaining) / float64(total)
	return bestPossible < cfg.RequiredPassRate
}

func runTrial(ctx context.Context, trialIndex int, s *scenario.Scenario, registry *eval.Registry, cfg Config) TrialResult {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return TrialResult{TrialIndex: trialIndex, Verdict: VerdictInfraError, Err: err, Attempts: attempt}
			}
		}
		attempts = attempt + 1

		a, err := cfg.AdapterFactory()
		if err != nil {
			lastErr = err
			if !adapter.IsTransient(err) {
				break
			}
			continue
		}

		r := runner.New(cfg.Telemetry)
		tr, err := r.Run(ctx, s, a, cfg.Mocks)
		if err != nil {
			lastErr = err
			if !adapter.IsTransient(err) {
				break
			}
			continue
		}

		ec := eval.EvalContext{
			Scenario:     s,
			JudgeConfig:  cfg.JudgeConfig,
			JudgeAdapter: cfg.JudgeAdapter,
			Telemetry:    cfg.Telemetry,
		}
		evalResults, err := registry.Evaluate(ctx, ec, tr, s.Assertions())
		if err != nil {
			result := TrialResult{
				TrialIndex: trialIndex,
				TraceID:    tr.TraceID,
				Trace:      tr,
				Verdict:    VerdictInfraError,
				Err:        err,
				Attempts:   attempt + 1,
			}
			persistTrace(ctx, cfg, trialIndex, result.Verdict, tr)
			return result
		}

		scored := scorer.Score(evalResults, s.Threshold())
		verdict := VerdictFail
		switch {
		case scored.HardFailed:
			verdict = VerdictHardFail
		case scored.Passed:
			verdict = VerdictPass
		}

		result := TrialResult{
			TrialIndex:  trialIndex,
			TraceID:     tr.TraceID,
			Trace:       tr,
			EvalResults: evalResults,
			Score:       scored,
			Verdict:     verdict,
			Attempts:    attempt + 1,
		}
		persistTrace(ctx, cfg, trialIndex, verdict, tr)
		return result
	}

	return TrialResult{TrialIndex: trialIndex, Verdict: VerdictInfraError, Err: lastErr, Attempts: attempts}
}

// persistTrace saves tr to cfg.Store, if configured, tagging the manifest
// entry with this trial's index and final verdict.
func persistTrace(ctx context.Context, cfg Config, trialIndex int, verdict Verdict, tr *trace.Trace) {
	if cfg.Store == nil {
		return
	}
	if err := cfg.Store.SaveTrace(ctx, cfg.RunID, trialIndex, string(verdict), tr); err != nil {
		cfg.Telemetry.Logger.Warn(ctx, "orchestrator: failed to persist trace", "trace_id", tr.TraceID, "error", err.Error())
	}
}

// sleepBackoff waits out attempt's exponential-backoff-with-full-jitter
// delay, or returns ctx.Err() if the context is cancelled first.
func sleepBackoff(ctx context.Context, attempt int) error {
	capDelay := float64(retryCapDelay)
	backoff := float64(retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > capDelay {
		backoff = capDelay
	}
	jittered := time.Duration(rand.Float64() * backoff)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jittered):
		return nil
	}
}

func aggregate(scenarioID string, trials []TrialResult, cfg Config, stoppedEarly bool, stopReason string) *SuiteResult {
	verdict := aggregateVerdict(trials, cfg.AllowInfra)

	var latencies []float64
	for _, t := range trials {
		if t.Trace != nil {
			latencies = append(latencies, t.Trace.LatencySeconds)
		}
	}
	sort.Float64s(latencies)

	failureCounts := map[int]int{}
	for _, t := range trials {
		if t.Verdict == VerdictPass {
			continue
		}
		for _, er := range t.EvalResults {
			if !er.Passed {
				failureCounts[er.AssertionIndex]++
			}
		}
	}
	ranking := make([]FailureCount, 0, len(failureCounts))
	for idx, count := range failureCounts {
		ranking = append(ranking, FailureCount{AssertionIndex: idx, Count: count})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Count != ranking[j].Count {
			return ranking[i].Count > ranking[j].Count
		}
		return ranking[i].AssertionIndex < ranking[j].AssertionIndex
	})

	return &SuiteResult{
		ScenarioID:         scenarioID,
		Trials:             trials,
		Verdict:            verdict,
		LatencyPercentiles: percentiles(latencies),
		FailureRanking:     ranking,
		StoppedEarly:       stoppedEarly,
		StopReason:         stopReason,
	}
}

// aggregateVerdict implements the §4.5 precedence: INFRA_ERROR when every
// trial infra-errored (whatever allowInfra is); HARD_FAIL if any
// trial in the base set hard-failed; PASS if the whole base set passed;
// PARTIAL if some but not all passed; FAIL otherwise. With allowInfra
// true, infra-errored trials are excluded from the base set entirely.
func aggregateVerdict(trials []TrialResult, allowInfra bool) Verdict {
	if len(trials) == 0 {
		return VerdictPass
	}

	allInfra := true
	for _, t := range trials {
		if t.Verdict != VerdictInfraError {
			allInfra = false
			break
		}
	}
	if allInfra && !allowInfra {
		return VerdictInfraError
	}

	base := trials
	if allowInfra {
		base = make([]TrialResult, 0, len(trials))
		for _, t := range trials {
			if t.Verdict != VerdictInfraError {
				base = append(base, t)
			}
		}
	}
	if len(base) == 0 {
		return VerdictInfraError
	}

	anyHard, anyPass, anyFail := false, false, false
	for _, t := range base {
		switch t.Verdict {
		case VerdictHardFail:
			anyHard = true
		case VerdictPass:
			anyPass = true
		default:
			anyFail = true
		}
	}
	switch {
	case anyHard:
		return VerdictHardFail
	case anyPass && !anyFail:
		return VerdictPass
	case anyPass && anyFail:
		return VerdictPartial
	default:
		return VerdictFail
	}
}

func percentiles(sorted []float64) map[string]float64 {
	if len(sorted) == 0 {
		return map[string]float64{}
	}
	return map[string]float64{
		"p50": percentile(sorted, 0.50),
		"p90": percentile(sorted, 0.90),
		"p99": percentile(sorted, 0.99),
	}
}

// percentile uses the nearest-rank method: no interpolation, always
// returns an observed value.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := int(math.Ceil(p*float64(n))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= n {
		rank = n - 1
	}
	return sorted[rank]
}
