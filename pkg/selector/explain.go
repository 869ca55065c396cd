package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/opsforge/execcore/pkg/selector/tiebreak"
)

// FallbackSink records a TIE_BREAK_FALLBACK event whenever breakTie gives
// up and Select keeps the deterministic top-1, satisfying
// spec.md §8 scenario 6 ("the event log records TIE_BREAK_FALLBACK").
type FallbackSink interface {
	RecordFallback(ctx context.Context, executionID, decisionIntent, reason string)
}

// breakTie consults tb with a compact, structured prompt containing only
// the top-2 candidates, per spec.md §4.4 step 7. When timeout is positive
// the call is bounded by tiebreak.WithTimeout so a slow or hung LLM call
// cannot stall selection past SELECTOR_LLM_TIMEOUT_MS.
func breakTie(ctx context.Context, tb tiebreak.Client, first, second ScoredCandidate, decisionIntent string, timeout time.Duration) (int, string, error) {
	req := tiebreak.Request{
		DecisionIntent: decisionIntent,
		First:          summarize(first),
		Second:         summarize(second),
	}

	var result tiebreak.Result
	var err error
	if timeout > 0 {
		result, err = tiebreak.WithTimeout(ctx, tb, req, timeout)
	} else {
		result, err = tb.Break(ctx, req)
	}
	if err != nil {
		return 0, "", err
	}
	return result.ChosenIndex, result.Rationale, nil
}

func summarize(sc ScoredCandidate) tiebreak.CandidateSummary {
	return tiebreak.CandidateSummary{
		ToolName:   sc.Candidate.Tool.ToolName,
		Pattern:    sc.Candidate.Pattern.Name,
		Score:      sc.Score,
		TopFeature: topFeature(sc.Norm),
	}
}

// topFeature names the single highest-contributing normalized feature,
// for both the tie-break prompt and the human-readable justification.
func topFeature(f Features) string {
	best := "time"
	bestVal := f.TimeMS
	for name, val := range map[string]float64{
		"cost": f.Cost, "complexity": f.Complexity, "accuracy": f.Accuracy, "completeness": f.Completeness,
	} {
		if val > bestVal {
			best, bestVal = name, val
		}
	}
	return best
}

// justify builds a human-readable explanation naming the highest
// normalized feature (mode weights are not applied when picking it) and
// listing all five normalized values, per spec.md §4.4 step 8.
func justify(sc ScoredCandidate, w weights) string {
	return fmt.Sprintf(
		"selected %s/%s (score=%.3f): top feature %s (norm=%.2f); time=%.2f cost=%.2f complexity=%.2f accuracy=%.2f completeness=%.2f",
		sc.Candidate.Tool.ToolName, sc.Candidate.Pattern.Name, sc.Score, topFeature(sc.Norm), weightedTop(sc.Norm, w),
		sc.Norm.TimeMS, sc.Norm.Cost, sc.Norm.Complexity, sc.Norm.Accuracy, sc.Norm.Completeness,
	)
}

func weightedTop(f Features, w weights) float64 {
	switch topFeature(f) {
	case "cost":
		return f.Cost
	case "complexity":
		return f.Complexity
	case "accuracy":
		return f.Accuracy
	case "completeness":
		return f.Completeness
	default:
		return f.TimeMS
	}
}

// executionHints attaches soft, non-filtering guidance (e.g. a batch
// size derived from the N variable) alongside the selection, per
// spec.md §4.4 step 8.
func executionHints(sc ScoredCandidate) map[string]any {
	hints := map[string]any{"pattern": sc.Candidate.Pattern.Name}
	if sc.Candidate.Tool.Policy.RequiresApproval {
		hints["approval_required"] = true
	}
	return hints
}
