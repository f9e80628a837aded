// Package scoring maps raw image metrics onto 0-100 scores.
package scoring

import (
	"math"

	"emperror.dev/errors"
)

// Default bounds. A Laplacian variance at or below 180 is "very blurry"
// (score 100), at or above 3000 it is sharp (score 0). A Hamming distance at
// or below 3 is "identical" (similarity 100), at or above 15 unrelated.
const (
	DefaultBlurBestVariance  = 180
	DefaultBlurWorstVariance = 3000
	DefaultSimilarityBest    = 3
	DefaultSimilarityWorst   = 15
)

// ErrDegenerateBounds is returned when both bounds are equal
var ErrDegenerateBounds = errors.NewPlain("best and worst bound must differ")

// Normalizer performs clamped linear interpolation between two bounds.
// Best maps to 100 and Worst maps to 0; either may be the larger one.
type Normalizer struct {
	best  float64
	worst float64
}

// New validates the bounds and returns a Normalizer
func New(best, worst float64) (Normalizer, error) {
	if math.IsNaN(best) || math.IsNaN(worst) || math.IsInf(best, 0) || math.IsInf(worst, 0) {
		return Normalizer{}, errors.Errorf("bounds must be finite, got best=%v worst=%v", best, worst)
	}
	if best == worst {
		return Normalizer{}, errors.Wrapf(ErrDegenerateBounds, "best=%v worst=%v", best, worst)
	}
	return Normalizer{best: best, worst: worst}, nil
}

// MustNew is New for bounds known to be valid at compile time
func MustNew(best, worst float64) Normalizer {
	n, err := New(best, worst)
	if err != nil {
		panic(err)
	}
	return n
}

// DefaultBlur returns the blur normalizer with the default variance bounds
func DefaultBlur() Normalizer {
	return MustNew(DefaultBlurBestVariance, DefaultBlurWorstVariance)
}

// DefaultSimilarity returns the Hamming distance normalizer with the default bounds
func DefaultSimilarity() Normalizer {
	return MustNew(DefaultSimilarityBest, DefaultSimilarityWorst)
}

// Best returns the bound that maps to 100
func (n Normalizer) Best() float64 { return n.best }

// Worst returns the bound that maps to 0
func (n Normalizer) Worst() float64 { return n.worst }

// Score maps raw onto [0,100]
func (n Normalizer) Score(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	ascending := n.best < n.worst
	if (ascending && raw <= n.best) || (!ascending && raw >= n.best) {
		return 100
	}
	if (ascending && raw >= n.worst) || (!ascending && raw <= n.worst) {
		return 0
	}

	score := 100 * (1 - (raw-n.best)/(n.worst-n.best))
	// half-to-even keeps x.5 results identical to the desktop scanner
	rounded := int(math.RoundToEven(score))
	return max(0, min(100, rounded))
}

// ScoreInt is Score for integer metrics such as Hamming distances
func (n Normalizer) ScoreInt(raw int) int {
	return n.Score(float64(raw))
}
