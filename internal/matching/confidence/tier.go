// internal/matching/confidence/tier.go
package confidence

import (
	"math"

	"trial-matcher/internal/models"
)

const (
	HighThreshold   = 80.0
	MediumThreshold = 60.0
	LowThreshold    = 40.0
)

// Classify buckets a final confidence score.
func Classify(score float64) models.ConfidenceTier {
	switch {
	case score >= HighThreshold:
		return models.TierHigh
	case score >= MediumThreshold:
		return models.TierMedium
	case score >= LowThreshold:
		return models.TierLow
	default:
		return models.TierMarginal
	}
}

// Clamp bounds v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Final combines base confidence and bonus into the [0,100] final score.
func Final(base, bonus float64) float64 {
	return Clamp(base+bonus, 0, 100)
}
