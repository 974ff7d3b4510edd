// internal/matching/criteria/biomarker.go
package criteria

import (
	"math"
	"strconv"
	"strings"
)

// RequirementKind tags how a required biomarker value is compared.
type RequirementKind int

const (
	KindExact RequirementKind = iota
	KindPositive
	KindNegative
	KindAtLeast
	KindAtMost
)

func (k RequirementKind) String() string {
	switch k {
	case KindPositive:
		return "positive"
	case KindNegative:
		return "negative"
	case KindAtLeast:
		return "at-least"
	case KindAtMost:
		return "at-most"
	default:
		return "exact"
	}
}

var (
	positiveTerms = map[string]struct{}{
		"positive": {}, "pos": {}, "+": {}, "yes": {}, "detected": {}, "present": {},
	}
	negativeTerms = map[string]struct{}{
		"negative": {}, "neg": {}, "-": {}, "no": {}, "not detected": {}, "absent": {},
	}
)

// BiomarkerRequirement is a required-value expression resolved once.
type BiomarkerRequirement struct {
	Kind      RequirementKind
	Raw       string
	Value     string
	Threshold float64

	// comparable is false when a >= / <= threshold could not be parsed.
	comparable bool
}

// ParseBiomarkerRequirement classifies expr. It never fails: an expression
// that is not a synonym or a well formed comparison matches exactly.
func ParseBiomarkerRequirement(expr string) BiomarkerRequirement {
	v := normalize(expr)
	req := BiomarkerRequirement{Kind: KindExact, Raw: expr, Value: v}

	if _, ok := positiveTerms[v]; ok {
		req.Kind = KindPositive
		return req
	}
	if _, ok := negativeTerms[v]; ok {
		req.Kind = KindNegative
		return req
	}

	var rest string
	switch {
	case strings.HasPrefix(v, ">="):
		req.Kind, rest = KindAtLeast, v[2:]
	case strings.HasPrefix(v, "<="):
		req.Kind, rest = KindAtMost, v[2:]
	default:
		return req
	}
	if t, ok := parseNumeric(rest); ok {
		req.Threshold = t
		req.comparable = true
	}
	return req
}

// Matches applies the requirement to an observed value. Equality always
// matches; comparisons that cannot be parsed never do.
func (r BiomarkerRequirement) Matches(observed string) bool {
	o := normalize(observed)
	if o == r.Value {
		return true
	}

	switch r.Kind {
	case KindPositive:
		_, ok := positiveTerms[o]
		return ok
	case KindNegative:
		_, ok := negativeTerms[o]
		return ok
	case KindAtLeast, KindAtMost:
		if !r.comparable {
			return false
		}
		n, ok := parseNumeric(o)
		if !ok {
			return false
		}
		if r.Kind == KindAtLeast {
			return n >= r.Threshold
		}
		return n <= r.Threshold
	}
	return false
}

// BiomarkerMatches is ParseBiomarkerRequirement(requiredExpr).Matches(observed).
func BiomarkerMatches(observed, requiredExpr string) bool {
	return ParseBiomarkerRequirement(requiredExpr).Matches(observed)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}
