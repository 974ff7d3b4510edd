package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Loading Tests
// ==========================

func TestDefault_IsValid(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	assert.NoError(t, reg.Validate())
	assert.Len(t, reg.Activities, 2)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, embedded, 0644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", reg.Version)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{"))
	assert.ErrorIs(t, err, ErrInvalidRegistry)
}

func TestFind(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	activity, err := reg.Find("score-candidate")
	require.NoError(t, err)
	assert.Equal(t, "Score Candidate", activity.DisplayName)

	_, err = reg.Find("unknown-task")
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

// ==========================
// Validation Tests
// ==========================

func TestValidate_Rules(t *testing.T) {
	base := func() Activity {
		return Activity{ID: "a", DisplayName: "A", TaskType: "a", Category: "matching"}
	}

	tests := []struct {
		name   string
		mutate func(*ActivityRegistry)
		want   string
	}{
		{
			name:   "empty",
			mutate: func(r *ActivityRegistry) { r.Activities = nil },
			want:   "no activities",
		},
		{
			name:   "duplicate id",
			mutate: func(r *ActivityRegistry) { r.Activities = append(r.Activities, base()) },
			want:   "duplicate activity ID",
		},
		{
			name:   "missing task type",
			mutate: func(r *ActivityRegistry) { r.Activities[0].TaskType = "" },
			want:   "TaskType",
		},
		{
			name:   "missing category",
			mutate: func(r *ActivityRegistry) { r.Activities[0].Category = "" },
			want:   "Category",
		},
		{
			name: "broken schema",
			mutate: func(r *ActivityRegistry) {
				r.Activities[0].InputSchema = map[string]interface{}{"type": 12}
			},
			want: "input schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &ActivityRegistry{Activities: []Activity{base()}}
			tt.mutate(reg)

			err := reg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRegistry)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateInput_MatchTrials(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	activity, err := reg.Find("match-trials")
	require.NoError(t, err)

	tests := []struct {
		name      string
		variables map[string]interface{}
		valid     bool
	}{
		{
			name:      "minimal",
			variables: map[string]interface{}{"subjectId": "patient-1"},
			valid:     true,
		},
		{
			name: "full",
			variables: map[string]interface{}{
				"subjectId":     "patient-1",
				"offeringIds":   []interface{}{"trial-1", "trial-2"},
				"minConfidence": 55.0,
				"topK":          5.0,
				"queryVector":   []interface{}{0.1, 0.2},
				"persist":       true,
			},
			valid: true,
		},
		{
			name:      "missing subject id",
			variables: map[string]interface{}{"topK": 3.0},
		},
		{
			name:      "confidence out of range",
			variables: map[string]interface{}{"subjectId": "p", "minConfidence": 140.0},
		},
		{
			name:      "fractional topK",
			variables: map[string]interface{}{"subjectId": "p", "topK": 2.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := activity.ValidateInput(tt.variables)
			require.NoError(t, err)
			if tt.valid {
				assert.Empty(t, violations)
			} else {
				assert.NotEmpty(t, violations)
				assert.NotEmpty(t, Summarize(violations))
			}
		})
	}
}

func TestValidateInput_NoSchema(t *testing.T) {
	activity := &Activity{ID: "free"}

	violations, err := activity.ValidateInput(map[string]interface{}{"anything": 1})

	assert.NoError(t, err)
	assert.Empty(t, violations)
}

func TestSummarize(t *testing.T) {
	got := Summarize([]SchemaViolation{
		{Field: "subjectId", Message: "subjectId is required"},
		{Field: "topK", Message: "Must be greater than or equal to 0"},
	})
	assert.Equal(t, "subjectId: subjectId is required; topK: Must be greater than or equal to 0", got)
}
