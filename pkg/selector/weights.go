package selector

// weights holds a weight per normalized feature; all five sum to 1.0.
type weights struct {
	Time, Cost, Complexity, Accuracy, Completeness float64
}

const (
	primaryWeight   = 0.40
	secondaryWeight = 0.15
	balancedWeight  = 0.20
)

// weightsForMode returns the scoring weights for mode: the primary
// feature gets 0.40 and the remaining four split 0.15 each, except
// BALANCED which weights all five uniformly at 0.20.
func weightsForMode(mode Mode) weights {
	w := weights{secondaryWeight, secondaryWeight, secondaryWeight, secondaryWeight, secondaryWeight}
	switch mode {
	case ModeFast:
		w.Time = primaryWeight
	case ModeAccurate:
		w.Accuracy = primaryWeight
	case ModeThorough:
		w.Completeness = primaryWeight
	case ModeCheap:
		w.Cost = primaryWeight
	case ModeSimple:
		w.Complexity = primaryWeight
	case ModeBalanced:
		w = weights{balancedWeight, balancedWeight, balancedWeight, balancedWeight, balancedWeight}
	default:
		w.Time = primaryWeight
	}
	return w
}

func (w weights) score(f Features) float64 {
	return w.Time*f.TimeMS + w.Cost*f.Cost + w.Complexity*f.Complexity + w.Accuracy*f.Accuracy + w.Completeness*f.Completeness
}
