package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBiomarkerRequirement(t *testing.T) {
	tests := []struct {
		expr      string
		kind      RequirementKind
		threshold float64
	}{
		{"positive", KindPositive, 0},
		{"POS", KindPositive, 0},
		{"+", KindPositive, 0},
		{"Not Detected", KindNegative, 0},
		{"-", KindNegative, 0},
		{">=50%", KindAtLeast, 50},
		{"<= 1.5", KindAtMost, 1.5},
		{"exon 19 deletion", KindExact, 0},
		{">50", KindExact, 0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			req := ParseBiomarkerRequirement(tt.expr)
			assert.Equal(t, tt.kind, req.Kind)
			assert.Equal(t, tt.threshold, req.Threshold)
			assert.Equal(t, tt.expr, req.Raw)
		})
	}
}

func TestBiomarkerMatches(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		required string
		expected bool
	}{
		{"exact", "exon 19 deletion", "exon 19 deletion", true},
		{"exact is case insensitive", "Exon 19 Deletion", "exon 19 DELETION", true},
		{"exact mismatch", "L858R", "exon 19 deletion", false},
		{"positive synonyms", "detected", "positive", true},
		{"plus sign positive", "+", "Pos", true},
		{"negative synonyms", "absent", "negative", true},
		{"positive against negative", "positive", "negative", false},
		{"at least passes", "60%", ">=50%", true},
		{"at least boundary", "50", ">=50%", true},
		{"at least fails", "49.9%", ">=50%", false},
		{"at most passes", "0.8", "<=1", true},
		{"at most fails", "2", "<=1", false},
		{"observed not numeric", "high", ">=50%", false},
		{"threshold not numeric", "60", ">=lots", false},
		{"empty observed", "", "positive", false},
		{"strict greater is exact only", "60", ">50", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BiomarkerMatches(tt.observed, tt.required))
		})
	}
}

func TestBiomarkerRequirement_ParsedOnceReusable(t *testing.T) {
	req := ParseBiomarkerRequirement(">=1%")

	assert.True(t, req.Matches("1"))
	assert.True(t, req.Matches("80%"))
	assert.False(t, req.Matches("0.5%"))
	assert.Equal(t, "at-least", req.Kind.String())
}
