// Package selector implements Stage B tool selection from spec.md §4.4:
// a deterministic, explainable scoring pipeline over candidate
// (tool, pattern) pairs, with a bounded LLM tie-breaker invoked only
// when the top two scores are statistically indistinguishable.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/selector/tiebreak"
	"github.com/opsforge/execcore/pkg/shared/mathsafe"
)

// TieBreakEpsilon is the score gap below which the top two candidates
// are considered tied and the LLM tie-breaker is consulted.
const TieBreakEpsilon = 0.08

// Select runs the full 8-step pipeline and returns the chosen
// (tool, pattern), a ranked list for explainability, and whether the
// tie-breaker fired. It is a pure function of its inputs except for the
// single optional tiebreak.Client call. llmTimeout bounds that call
// (SELECTOR_LLM_TIMEOUT_MS); events, if non-nil and req.ExecutionID is
// set, is notified when the tie-breaker errors or times out and Select
// falls back to the deterministic top-1.
func Select(ctx context.Context, req Request, candidates []Candidate, requiredCapabilities []string, tb tiebreak.Client, decisionIntent string, llmTimeout time.Duration, events FallbackSink) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("selector: no candidates supplied")
	}

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		// step 1: candidate enumeration
		if !hasCapabilityIntersection(c.Tool, requiredCapabilities) {
			continue
		}

		raw, err := evaluateFeatures(c.Pattern, req.Vars) // steps 2-3 (context estimation + formula evaluation)
		if err != nil {
			// A formula that fails to evaluate (bad data, div-by-zero)
			// removes the candidate rather than aborting the whole
			// selection — one bad pattern shouldn't block every tool.
			scored = append(scored, ScoredCandidate{Candidate: c, Rejected: err.Error()})
			continue
		}

		sc := ScoredCandidate{Candidate: c, Raw: raw, Norm: normalize(raw)} // step 4
		applyPolicy(req, &sc)                                              // step 5 (hard, non-bypassable)
		scored = append(scored, sc)
	}

	live := make([]ScoredCandidate, 0, len(scored))
	for i := range scored {
		if scored[i].Rejected == "" {
			live = append(live, scored[i])
		}
	}
	if len(live) == 0 {
		return Result{}, fmt.Errorf("selector: no candidate survived policy filtering")
	}

	w := weightsForMode(req.Mode) // step 6
	for i := range live {
		live[i].Score = w.score(live[i].Norm)
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].Score > live[j].Score })

	result := Result{Ranked: live}

	chosen := 0
	if len(live) >= 2 && math.Abs(live[0].Score-live[1].Score) < TieBreakEpsilon && tb != nil { // step 7
		idx, reason, err := breakTie(ctx, tb, live[0], live[1], decisionIntent, llmTimeout)
		if err == nil {
			chosen = idx
			result.TieBreakUsed = true
			result.TieBreakReason = reason
		} else if events != nil && req.ExecutionID != "" {
			// on error/timeout: keep the deterministic top (index 0), but
			// record that the fallback happened against the execution's
			// own event stream.
			events.RecordFallback(ctx, req.ExecutionID, decisionIntent, err.Error())
		}
	}

	result.Selected = live[chosen].Candidate
	result.Justification = justify(live[chosen], w)
	result.ExecutionHints = executionHints(live[chosen])
	return result, nil
}

// evaluateFeatures runs the pattern's time_ms/cost/complexity formulas
// through the safe math evaluator, binding vars as the named variable
// set. Accuracy and completeness are static passthrough values already
// on the pattern, per spec.md §4.4 step 4.
func evaluateFeatures(pattern domain.PerformancePattern, vars map[string]float64) (Features, error) {
	timeMS, err := mathsafe.Evaluate(pattern.TimeMsFormula, mathsafe.Vars(vars))
	if err != nil {
		return Features{}, fmt.Errorf("selector: time_ms formula: %w", err)
	}
	cost, err := mathsafe.Evaluate(pattern.CostFormula, mathsafe.Vars(vars))
	if err != nil {
		return Features{}, fmt.Errorf("selector: cost formula: %w", err)
	}
	return Features{
		TimeMS:       timeMS,
		Cost:         cost,
		Complexity:   pattern.Complexity,
		Accuracy:     pattern.Accuracy,
		Completeness: pattern.Completeness,
	}, nil
}
