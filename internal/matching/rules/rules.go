// internal/matching/rules/rules.go
package rules

import (
	"fmt"
	"strings"

	"trial-matcher/internal/matching/criteria"
	"trial-matcher/internal/models"
)

// Rule scores one aspect of a (subject, offering) pair in [0,1] and
// explains the decision in one or more trace lines. Rules never fail:
// missing or malformed data maps to a neutral score.
type Rule interface {
	Name() string
	Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string)
}

// DefaultRules is the fixed rule set, in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		AgeRule{},
		GenderRule{},
		BiomarkerRule{},
		ConditionRule{},
		ContraindicationRule{},
	}
}

const neutralScore = 0.5

func decision(format string, score float64, args ...interface{}) string {
	return fmt.Sprintf("("+format+") -> %.2f", append(args, score)...)
}

func ratio(matched, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(matched) / float64(total)
}

// AgeRule scores the share of the subject's age interval that falls
// inside the offering's window.
type AgeRule struct{}

func (AgeRule) Name() string { return models.RuleAgeInRange }

func (AgeRule) Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string) {
	raw := strings.TrimSpace(s.AgeRange)
	if raw == "" {
		return neutralScore, []string{decision("age-in-range (subject unknown)", neutralScore) + " ; no subject age"}
	}

	age := criteria.ParseAgeRange(raw)
	if !age.Known {
		return neutralScore, []string{decision("age-in-range (subject %q)", neutralScore, raw) + " ; unparseable age"}
	}

	lo, hi := o.AgeBounds()
	overlap := age.Overlap(lo, hi)
	if overlap == 0 {
		return 0, []string{decision("age-in-range (subject %s) (offering %d-%d)", 0, raw, lo, hi) + " ; out of range"}
	}

	score := float64(overlap) / float64(age.Span())
	return score, []string{decision("age-in-range (subject %s) (offering %d-%d)", score, raw, lo, hi)}
}

// GenderRule checks the offering's gender eligibility.
type GenderRule struct{}

func (GenderRule) Name() string { return models.RuleGenderEligible }

func (GenderRule) Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string) {
	required := o.GenderRequirement()
	gender := strings.ToLower(strings.TrimSpace(s.Gender))
	shown := gender
	if shown == "" {
		shown = "unknown"
	}

	switch {
	case required == models.GenderAll:
		return 1, []string{decision("gender-eligible %s all", 1, shown)}
	case gender == "":
		return neutralScore, []string{decision("gender-eligible unknown %s", neutralScore, required) + " ; no subject gender"}
	case gender == required:
		return 1, []string{decision("gender-eligible %s %s", 1, gender, required)}
	default:
		return 0, []string{decision("gender-eligible %s %s", 0, gender, required) + " ; mismatch"}
	}
}

// BiomarkerRule scores the fraction of required biomarkers the subject
// carries with a matching value. Absent markers count as misses.
type BiomarkerRule struct{}

func (BiomarkerRule) Name() string { return models.RuleBiomarkerMatch }

func (BiomarkerRule) Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string) {
	if len(o.RequiredBiomarkers) == 0 {
		return 1, []string{decision("biomarker-match none-required", 1)}
	}

	names := o.BiomarkerNames()
	lines := make([]string, 0, len(names)+1)
	matched := 0
	for _, name := range names {
		expr := o.RequiredBiomarkers[name]
		observed, ok := s.Biomarker(name)
		if !ok {
			lines = append(lines, fmt.Sprintf("(has-biomarker %s missing) -> false ; not in subject profile", name))
			continue
		}
		if criteria.ParseBiomarkerRequirement(expr).Matches(observed) {
			matched++
			lines = append(lines, fmt.Sprintf("(has-biomarker %s=%s required=%s) -> true", name, observed, expr))
		} else {
			lines = append(lines, fmt.Sprintf("(has-biomarker %s=%s required=%s) -> false ; value mismatch", name, observed, expr))
		}
	}

	score := ratio(matched, len(names))
	lines = append(lines, decision("biomarker-match %d/%d", score, matched, len(names)))
	return score, lines
}

// ConditionRule scores the fraction of target conditions the subject has.
type ConditionRule struct{}

func (ConditionRule) Name() string { return models.RuleConditionMatch }

func (ConditionRule) Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string) {
	if len(o.Conditions) == 0 {
		return neutralScore, []string{decision("condition-match no-offering-conditions", neutralScore) + " ; offering lists no target conditions"}
	}
	if len(s.Conditions) == 0 {
		return 0, []string{decision("condition-match no-subject-conditions", 0) + " ; subject lists no conditions"}
	}

	lines := make([]string, 0, len(o.Conditions)+1)
	matched := 0
	for _, target := range o.Conditions {
		if have, ok := criteria.AnyConditionSimilar(target, s.Conditions); ok {
			matched++
			lines = append(lines, fmt.Sprintf("(condition-match %q ~ %q) -> true", have, target))
		}
	}

	score := ratio(matched, len(o.Conditions))
	line := decision("condition-match %d/%d", score, matched, len(o.Conditions))
	if matched == 0 {
		line += " ; no matching conditions"
	}
	return score, append(lines, line)
}

// ContraindicationRule fails on the first excluded condition or medication
// the subject exhibits.
type ContraindicationRule struct{}

func (ContraindicationRule) Name() string { return models.RuleNoContraindications }

func (ContraindicationRule) Apply(s *models.SubjectProfile, o *models.Offering) (float64, []string) {
	for _, excluded := range o.ExcludedConditions {
		if have, ok := criteria.AnyConditionSimilar(excluded, s.Conditions); ok {
			return 0, []string{decision("no-contraindications condition %q ~ %q", 0, have, excluded) + " ; excluded condition"}
		}
	}
	for _, excluded := range o.ExcludedMedications {
		if takes, ok := criteria.AnyMedicationMatches(excluded, s.Medications); ok {
			return 0, []string{decision("no-contraindications medication %q ~ %q", 0, takes, excluded) + " ; excluded medication"}
		}
	}
	return 1, []string{decision("no-contraindications pass", 1)}
}
