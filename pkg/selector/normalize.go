package selector

import "math"

// Normalization bounds from spec.md §4.4 step 4.
const (
	timeMinMS  = 50
	timeMaxMS  = 60000
	costMax    = 10
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalize maps raw feature values into [0,1] where higher is always
// better, per spec.md §4.4 step 4's formulas.
func normalize(raw Features) Features {
	t := clamp(raw.TimeMS, timeMinMS, timeMaxMS)
	timeNorm := 1 - (math.Log(t)-math.Log(timeMinMS))/(math.Log(timeMaxMS)-math.Log(timeMinMS))

	c := clamp(raw.Cost, 0, costMax)
	costNorm := 1 - c/costMax

	complexityNorm := 1 - clamp(raw.Complexity, 0, 1)

	return Features{
		TimeMS:       timeNorm,
		Cost:         costNorm,
		Complexity:   complexityNorm,
		Accuracy:     clamp(raw.Accuracy, 0, 1),
		Completeness: clamp(raw.Completeness, 0, 1),
	}
}
