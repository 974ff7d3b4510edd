package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trial-matcher/internal/models"
)

func scores(age, gender, biomarker, condition, contra float64) []models.RuleScore {
	return []models.RuleScore{
		{Rule: models.RuleAgeInRange, Score: age},
		{Rule: models.RuleGenderEligible, Score: gender},
		{Rule: models.RuleBiomarkerMatch, Score: biomarker},
		{Rule: models.RuleConditionMatch, Score: condition},
		{Rule: models.RuleNoContraindications, Score: contra},
	}
}

// ==========================
// Policy Validation
// ==========================

func TestDefaultPolicy_Valid(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 0.5, p.CriticalThreshold)
	assert.Equal(t, 0.3, p.IneligiblePenalty)
}

func TestPolicy_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"weights do not sum to one", func(p *Policy) { p.Weights.Age = 0.5 }},
		{"negative weight", func(p *Policy) { p.Weights.Gender = -0.1; p.Weights.Age = 0.35 }},
		{"zero threshold", func(p *Policy) { p.CriticalThreshold = 0 }},
		{"threshold above one", func(p *Policy) { p.CriticalThreshold = 1.5 }},
		{"penalty above one", func(p *Policy) { p.IneligiblePenalty = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

// ==========================
// Aggregation
// ==========================

func TestPolicy_Aggregate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		scores   []models.RuleScore
		eligible bool
		base     float64
	}{
		{"all perfect", scores(1, 1, 1, 1, 1), true, 100},
		{"missing biomarkers", scores(1, 1, 0, 1, 1), true, 70},
		{"ambiguous condition", scores(1, 1, 1, 0.5, 1), true, 85},
		{"unknown demographics pass the gate", scores(0.5, 0.5, 1, 1, 1), true, 87.5},
		{"contraindication fails gate", scores(1, 1, 1, 1, 0), false, 80 * 0.3},
		{"gender mismatch fails gate", scores(1, 0, 0, 0, 1), false, 40 * 0.3},
		{"age just below threshold", scores(0.49, 1, 1, 1, 1), false, 89.8 * 0.3},
		{"biomarker is not critical", scores(1, 1, 0, 0, 1), true, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eligible, base := p.Aggregate(tt.scores)
			assert.Equal(t, tt.eligible, eligible)
			assert.InDelta(t, tt.base, base, 1e-9)
		})
	}
}

func TestPolicy_AggregateConfigurable(t *testing.T) {
	p := DefaultPolicy()
	p.IneligiblePenalty = 0.5
	p.CriticalThreshold = 0.6

	eligible, base := p.Aggregate(scores(0.5, 1, 1, 1, 1))
	assert.False(t, eligible)
	assert.InDelta(t, 90*0.5, base, 1e-9)
}

func TestPolicy_AggregateEmpty(t *testing.T) {
	eligible, base := DefaultPolicy().Aggregate(nil)
	assert.False(t, eligible)
	assert.Equal(t, 0.0, base)
}

func TestPolicy_AggregateStaysInRange(t *testing.T) {
	p := DefaultPolicy()
	for _, v := range []float64{-1, 0, 0.25, 0.5, 1, 2, math.NaN()} {
		_, base := p.Aggregate(scores(v, v, v, v, v))
		assert.GreaterOrEqual(t, base, 0.0)
		assert.LessOrEqual(t, base, 100.0)
	}
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical(models.RuleAgeInRange))
	assert.True(t, IsCritical(models.RuleGenderEligible))
	assert.True(t, IsCritical(models.RuleNoContraindications))
	assert.False(t, IsCritical(models.RuleBiomarkerMatch))
	assert.False(t, IsCritical(models.RuleConditionMatch))
}
