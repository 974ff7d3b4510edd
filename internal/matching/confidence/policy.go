// internal/matching/confidence/policy.go
package confidence

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"trial-matcher/internal/models"
)

var (
	ErrInvalidPolicy = errors.New("INVALID_CONFIDENCE_POLICY")

	validate = validator.New()
)

// weightTolerance absorbs float error when checking that weights sum to one.
const weightTolerance = 1e-6

// Weights of each rule on the eligible path.
type Weights struct {
	Age              float64 `json:"age" validate:"gte=0,lte=1"`
	Gender           float64 `json:"gender" validate:"gte=0,lte=1"`
	Biomarker        float64 `json:"biomarker" validate:"gte=0,lte=1"`
	Condition        float64 `json:"condition" validate:"gte=0,lte=1"`
	Contraindication float64 `json:"contraindication" validate:"gte=0,lte=1"`
}

func (w Weights) sum() float64 {
	return w.Age + w.Gender + w.Biomarker + w.Condition + w.Contraindication
}

// Policy turns rule scores into a base confidence percentage.
type Policy struct {
	Weights Weights `json:"weights"`

	// CriticalThreshold is the score a critical rule must reach for the
	// subject to be eligible.
	CriticalThreshold float64 `json:"criticalThreshold" validate:"gt=0,lte=1"`

	// IneligiblePenalty scales the mean score of an ineligible candidate.
	IneligiblePenalty float64 `json:"ineligiblePenalty" validate:"gte=0,lte=1"`
}

func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			Age:              0.15,
			Gender:           0.10,
			Biomarker:        0.30,
			Condition:        0.30,
			Contraindication: 0.15,
		},
		CriticalThreshold: 0.5,
		IneligiblePenalty: 0.3,
	}
}

func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if s := p.Weights.sum(); math.Abs(s-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, expected 1", ErrInvalidPolicy, s)
	}
	return nil
}

// criticalRules can each force ineligibility on their own.
var criticalRules = map[string]struct{}{
	models.RuleAgeInRange:          {},
	models.RuleGenderEligible:      {},
	models.RuleNoContraindications: {},
}

func IsCritical(rule string) bool {
	_, ok := criticalRules[rule]
	return ok
}

// Weight returns the eligible-path weight of a rule, zero for unknown names.
func (p Policy) Weight(rule string) float64 {
	switch rule {
	case models.RuleAgeInRange:
		return p.Weights.Age
	case models.RuleGenderEligible:
		return p.Weights.Gender
	case models.RuleBiomarkerMatch:
		return p.Weights.Biomarker
	case models.RuleConditionMatch:
		return p.Weights.Condition
	case models.RuleNoContraindications:
		return p.Weights.Contraindication
	}
	return 0
}

// Passes reports whether every critical rule reached the threshold. A NaN
// score never passes.
func (p Policy) Passes(scores []models.RuleScore) bool {
	for _, s := range scores {
		if IsCritical(s.Rule) && !(s.Score >= p.CriticalThreshold) {
			return false
		}
	}
	return true
}

// Aggregate applies the critical gate and returns the base confidence in
// [0,100]. Ineligible candidates keep a penalised mean so near misses still
// rank above clear misses.
func (p Policy) Aggregate(scores []models.RuleScore) (bool, float64) {
	if len(scores) == 0 {
		return false, 0
	}

	if !p.Passes(scores) {
		var total float64
		for _, s := range scores {
			total += Clamp(s.Score, 0, 1)
		}
		mean := total / float64(len(scores))
		return false, Clamp(mean*100*p.IneligiblePenalty, 0, 100)
	}

	var weighted float64
	for _, s := range scores {
		weighted += p.Weight(s.Rule) * Clamp(s.Score, 0, 1)
	}
	return true, Clamp(weighted*100, 0, 100)
}
