// internal/matching/criteria/conditions.go
package criteria

import "strings"

// conditionAliases maps a clinical abbreviation to the full forms it stands for.
var conditionAliases = map[string][]string{
	"nsclc": {"non-small cell lung cancer", "non small cell lung cancer"},
	"sclc":  {"small cell lung cancer"},
	"t2d":   {"type 2 diabetes", "diabetes type 2", "diabetes mellitus type 2"},
	"t1d":   {"type 1 diabetes", "diabetes type 1", "diabetes mellitus type 1"},
	"crc":   {"colorectal cancer", "colon cancer", "rectal cancer"},
	"hcc":   {"hepatocellular carcinoma", "liver cancer"},
	"rcc":   {"renal cell carcinoma", "kidney cancer"},
}

// conditionStopwords never count as meaningful shared tokens.
var conditionStopwords = map[string]struct{}{
	"disease": {}, "disorder": {}, "syndrome": {}, "type": {},
	"stage": {}, "cancer": {}, "chronic": {}, "acute": {},
}

// ConditionsSimilar reports whether two condition names refer to the same
// thing. In order it tries case-insensitive equality, substring containment
// either way, membership of one alias group, and finally token overlap: at
// least two shared tokens of which at least one is not a stopword.
//
// The token rule is permissive ("type 2 diabetes" ~ "type 2 hypertension"
// shares "type" and "2"); it is kept isolated here so it can be tightened.
func ConditionsSimilar(a, b string) bool {
	x, y := normalize(a), normalize(b)
	if x == "" || y == "" {
		return false
	}
	if x == y || strings.Contains(x, y) || strings.Contains(y, x) {
		return true
	}
	if sameAliasGroup(x, y) {
		return true
	}
	return sharesMeaningfulTokens(x, y)
}

func sameAliasGroup(x, y string) bool {
	for abbr, forms := range conditionAliases {
		if inGroup(x, abbr, forms) && inGroup(y, abbr, forms) {
			return true
		}
	}
	return false
}

func inGroup(s, abbr string, forms []string) bool {
	if s == abbr {
		return true
	}
	for _, f := range forms {
		if s == f {
			return true
		}
	}
	return false
}

func sharesMeaningfulTokens(x, y string) bool {
	left := map[string]struct{}{}
	for _, w := range strings.Fields(x) {
		left[w] = struct{}{}
	}
	common, meaningful := 0, 0
	seen := map[string]struct{}{}
	for _, w := range strings.Fields(y) {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := left[w]; !ok {
			continue
		}
		common++
		if _, stop := conditionStopwords[w]; !stop {
			meaningful++
		}
	}
	return meaningful >= 1 && common >= 2
}

// AnyConditionSimilar reports whether target is similar to any of candidates
// and returns the first such candidate.
func AnyConditionSimilar(target string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if ConditionsSimilar(target, c) {
			return c, true
		}
	}
	return "", false
}

// MedicationMatches is a case-insensitive substring match in either direction.
func MedicationMatches(a, b string) bool {
	x, y := normalize(a), normalize(b)
	if x == "" || y == "" {
		return false
	}
	return strings.Contains(x, y) || strings.Contains(y, x)
}

// AnyMedicationMatches returns the first candidate that matches target.
func AnyMedicationMatches(target string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if MedicationMatches(target, c) {
			return c, true
		}
	}
	return "", false
}
