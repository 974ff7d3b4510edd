package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trial-matcher/internal/models"
)

func intPtr(v int) *int { return &v }

func TestBuilder_Inclusion(t *testing.T) {
	subject := &models.SubjectProfile{
		AgeRange:   "45-55",
		Conditions: []string{"NSCLC", "hypertension", "gout", "asthma"},
		Biomarkers: map[string]string{"egfr": "positive", "PD-L1": "30%"},
	}
	offering := &models.Offering{
		Conditions:         []string{"non-small cell lung cancer"},
		AgeMin:             intPtr(18),
		AgeMax:             intPtr(75),
		RequiredBiomarkers: map[string]string{"PD-L1": ">=50%", "EGFR": "pos", "KRAS": "negative"},
	}

	checks := NewBuilder().Inclusion(subject, offering)
	require.Len(t, checks, 5)

	assert.Equal(t, models.CriteriaCheck{
		Criterion: "Age between 18 and 75",
		Passed:    true,
		Value:     "45-55",
		Required:  "18-75",
		Reasoning: "Age range overlap check",
	}, checks[0])

	assert.Equal(t, "Has target condition: non-small cell lung cancer", checks[1].Criterion)
	assert.True(t, checks[1].Passed)
	assert.Equal(t, "NSCLC, hypertension, gout", checks[1].Value)

	assert.Equal(t, "Biomarker EGFR: pos", checks[2].Criterion)
	assert.True(t, checks[2].Passed)
	assert.Equal(t, "positive", checks[2].Value)
	assert.Equal(t, "Biomarker match", checks[2].Reasoning)

	assert.Equal(t, "Biomarker KRAS: negative", checks[3].Criterion)
	assert.False(t, checks[3].Passed)
	assert.Equal(t, "missing", checks[3].Value)
	assert.Equal(t, "Biomarker mismatch or missing", checks[3].Reasoning)

	assert.Equal(t, "Biomarker PD-L1: >=50%", checks[4].Criterion)
	assert.False(t, checks[4].Passed)
	assert.Equal(t, "30%", checks[4].Value)
}

func TestBuilder_InclusionAgeEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		age      string
		expected bool
	}{
		{"unknown passes", "", true},
		{"unparseable passes", "n/a", true},
		{"overlapping passes", "70-80", true},
		{"outside fails", "80-90", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := NewBuilder().Inclusion(&models.SubjectProfile{AgeRange: tt.age}, &models.Offering{AgeMin: intPtr(18), AgeMax: intPtr(75)})
			assert.Equal(t, tt.expected, checks[0].Passed)
		})
	}
}

func TestBuilder_InclusionConditionNeedsBothSides(t *testing.T) {
	b := NewBuilder()

	checks := b.Inclusion(&models.SubjectProfile{}, &models.Offering{Conditions: []string{"asthma"}})
	assert.False(t, checks[1].Passed)

	checks = b.Inclusion(&models.SubjectProfile{Conditions: []string{"asthma"}}, &models.Offering{})
	assert.False(t, checks[1].Passed)
	assert.Equal(t, "Has target condition: ", checks[1].Criterion)
}

func TestBuilder_Exclusion(t *testing.T) {
	subject := &models.SubjectProfile{
		Conditions:  []string{"Hepatitis B"},
		Medications: []string{"Warfarin Sodium"},
	}
	offering := &models.Offering{
		ExcludedConditions:  []string{"hepatitis b", "pregnancy"},
		ExcludedMedications: []string{"warfarin", "insulin"},
	}

	checks := NewBuilder().Exclusion(subject, offering)
	require.Len(t, checks, 4)

	assert.Equal(t, models.CriteriaCheck{
		Criterion: "Does NOT have: hepatitis b",
		Passed:    false,
		Value:     "Present",
		Required:  "Must not have",
		Reasoning: "Exclusion criterion check",
	}, checks[0])
	assert.True(t, checks[1].Passed)
	assert.Equal(t, "Not present", checks[1].Value)

	assert.Equal(t, models.CriteriaCheck{
		Criterion: "NOT taking: warfarin",
		Passed:    false,
		Value:     "Taking",
		Required:  "Must not take",
		Reasoning: "Medication exclusion check",
	}, checks[2])
	assert.True(t, checks[3].Passed)
	assert.Equal(t, "Not taking", checks[3].Value)
}

func TestBuilder_ExclusionBounded(t *testing.T) {
	offering := &models.Offering{
		ExcludedConditions:  []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		ExcludedMedications: []string{"m1", "m2", "m3", "m4", "m5", "m6"},
	}

	checks := NewBuilder().Exclusion(&models.SubjectProfile{}, offering)
	require.Len(t, checks, 10)
	assert.Equal(t, "Does NOT have: a5", checks[4].Criterion)
	assert.Equal(t, "NOT taking: m1", checks[5].Criterion)
	assert.Equal(t, "NOT taking: m5", checks[9].Criterion)
}
