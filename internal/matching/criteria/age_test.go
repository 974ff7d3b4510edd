package criteria

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAgeRange(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected AgeRange
	}{
		{"closed range", "45-55", AgeRange{Min: 45, Max: 55, Known: true}},
		{"closed range with spaces", " 18 - 30 ", AgeRange{Min: 18, Max: 30, Known: true}},
		{"open ended", "65+", AgeRange{Min: 65, Max: 120, Known: true}},
		{"single age", "40", AgeRange{Min: 40, Max: 40, Known: true}},
		{"plus inside range is ignored", "60-70+", AgeRange{Min: 60, Max: 70, Known: true}},
		{"empty", "", Unknown},
		{"whitespace", "   ", Unknown},
		{"not a number", "adult", Unknown},
		{"inverted", "55-45", Unknown},
		{"missing upper bound", "45-", Unknown},
		{"three parts", "1-2-3", Unknown},
		{"garbage suffix", "45-55 years", Unknown},
		{"upper bound capped", "65-150", AgeRange{Min: 65, Max: 120, Known: true}},
		{"huge upper bound capped", "0-9223372036854775807", AgeRange{Min: 0, Max: 120, Known: true}},
		{"lower bound past cap", "130-140", Unknown},
		{"single age past cap", "200", Unknown},
		{"open ended past cap", "121+", Unknown},
		{"out of int range", "0-99999999999999999999", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAgeRange(tt.input))
		})
	}
}

func TestAgeRange_Overlap(t *testing.T) {
	r := ParseAgeRange("45-55")

	assert.Equal(t, 11, r.Span())
	assert.Equal(t, 11, r.Overlap(18, 75))
	assert.Equal(t, 6, r.Overlap(50, 75))
	assert.Equal(t, 1, r.Overlap(55, 60))
	assert.Equal(t, 0, r.Overlap(56, 60))
	assert.True(t, r.Intersects(0, 45))
	assert.False(t, r.Intersects(0, 44))

	assert.Equal(t, 0, Unknown.Overlap(0, 120))
	assert.Equal(t, 0, Unknown.Span())
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "45-55", r.String())
}

func TestAgeRange_SpanStaysBounded(t *testing.T) {
	tests := []struct {
		input string
		span  int
	}{
		{"0-9223372036854775807", 121},
		{"18+", 103},
		{"120", 1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r := ParseAgeRange(tt.input)
			assert.Equal(t, tt.span, r.Span())
			assert.Equal(t, tt.span, r.Overlap(0, math.MaxInt))
		})
	}
}

func TestAgeRange_ContainedIntervalsFullyOverlap(t *testing.T) {
	for lo := 18; lo <= 75; lo += 7 {
		for hi := lo; hi <= 75; hi += 5 {
			r := AgeRange{Min: lo, Max: hi, Known: true}
			assert.Equal(t, r.Span(), r.Overlap(18, 75), "range %s", r)
		}
	}
}
