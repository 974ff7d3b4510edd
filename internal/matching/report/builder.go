// internal/matching/report/builder.go
package report

import (
	"fmt"
	"strings"

	"trial-matcher/internal/matching/criteria"
	"trial-matcher/internal/models"
)

const (
	// DefaultMaxExclusions bounds each exclusion list in a report.
	DefaultMaxExclusions = 5

	conditionPreview = 3
)

// Builder renders display checklists. Checklists do not feed the score.
type Builder struct {
	maxExclusions int
}

func NewBuilder() *Builder {
	return &Builder{maxExclusions: DefaultMaxExclusions}
}

// Inclusion returns the age check, the target-condition check and one check
// per required biomarker in name order.
func (b *Builder) Inclusion(s *models.SubjectProfile, o *models.Offering) []models.CriteriaCheck {
	checks := make([]models.CriteriaCheck, 0, 2+len(o.RequiredBiomarkers))
	checks = append(checks, ageCheck(s, o), conditionCheck(s, o))

	for _, name := range o.BiomarkerNames() {
		expr := o.RequiredBiomarkers[name]
		observed, ok := s.Biomarker(name)
		passed := ok && criteria.ParseBiomarkerRequirement(expr).Matches(observed)

		value := observed
		if !ok {
			value = "missing"
		}
		reasoning := "Biomarker match"
		if !passed {
			reasoning = "Biomarker mismatch or missing"
		}
		checks = append(checks, models.CriteriaCheck{
			Criterion: fmt.Sprintf("Biomarker %s: %s", name, expr),
			Passed:    passed,
			Value:     value,
			Required:  expr,
			Reasoning: reasoning,
		})
	}
	return checks
}

// ageCheck passes when the age is unknown: absent data is not disqualifying
// for display purposes.
func ageCheck(s *models.SubjectProfile, o *models.Offering) models.CriteriaCheck {
	lo, hi := o.AgeBounds()
	check := models.CriteriaCheck{
		Criterion: fmt.Sprintf("Age between %d and %d", lo, hi),
		Required:  fmt.Sprintf("%d-%d", lo, hi),
		Value:     strings.TrimSpace(s.AgeRange),
	}

	age := criteria.ParseAgeRange(s.AgeRange)
	if !age.Known {
		if check.Value == "" {
			check.Value = "unknown"
		}
		check.Passed = true
		check.Reasoning = "Age not available, assumed eligible"
		return check
	}
	check.Passed = age.Intersects(lo, hi)
	check.Reasoning = "Age range overlap check"
	return check
}

func conditionCheck(s *models.SubjectProfile, o *models.Offering) models.CriteriaCheck {
	passed := false
	for _, target := range o.Conditions {
		if _, ok := criteria.AnyConditionSimilar(target, s.Conditions); ok {
			passed = true
			break
		}
	}
	return models.CriteriaCheck{
		Criterion: "Has target condition: " + preview(o.Conditions),
		Passed:    passed,
		Value:     preview(s.Conditions),
		Required:  preview(o.Conditions),
		Reasoning: "Condition similarity check",
	}
}

func preview(items []string) string {
	if len(items) > conditionPreview {
		items = items[:conditionPreview]
	}
	return strings.Join(items, ", ")
}

// Exclusion returns up to maxExclusions excluded-condition checks followed by
// up to maxExclusions excluded-medication checks. A check passes when the
// subject does not exhibit the excluded item.
func (b *Builder) Exclusion(s *models.SubjectProfile, o *models.Offering) []models.CriteriaCheck {
	conds := limit(o.ExcludedConditions, b.maxExclusions)
	meds := limit(o.ExcludedMedications, b.maxExclusions)
	checks := make([]models.CriteriaCheck, 0, len(conds)+len(meds))

	for _, excluded := range conds {
		_, has := criteria.AnyConditionSimilar(excluded, s.Conditions)
		value := "Not present"
		if has {
			value = "Present"
		}
		checks = append(checks, models.CriteriaCheck{
			Criterion: "Does NOT have: " + excluded,
			Passed:    !has,
			Value:     value,
			Required:  "Must not have",
			Reasoning: "Exclusion criterion check",
		})
	}

	for _, excluded := range meds {
		_, takes := criteria.AnyMedicationMatches(excluded, s.Medications)
		value := "Not taking"
		if takes {
			value = "Taking"
		}
		checks = append(checks, models.CriteriaCheck{
			Criterion: "NOT taking: " + excluded,
			Passed:    !takes,
			Value:     value,
			Required:  "Must not take",
			Reasoning: "Medication exclusion check",
		})
	}
	return checks
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
