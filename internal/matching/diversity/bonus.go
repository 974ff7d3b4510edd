// internal/matching/diversity/bonus.go
package diversity

import (
	"fmt"
	"strings"

	"trial-matcher/internal/models"
)

const (
	DefaultMaxBonus = 15.0

	ethnicityBonus = 5.0
	femaleBonus    = 3.0
	ruralBonus     = 3.0
	seniorBonus    = 2.0
)

var (
	underrepresentedEthnicities = map[string]struct{}{
		"african_american": {},
		"hispanic":         {},
		"native_american":  {},
		"pacific_islander": {},
	}
	ruralKeywords = []string{"rural", "remote", "countryside"}
)

// Calculator computes the additive recruitment-diversity bonus. It is
// independent of rule scoring and safe for concurrent use.
type Calculator struct {
	maxBonus float64
}

// NewCalculator caps the bonus at maxBonus; non-positive values use the default.
func NewCalculator(maxBonus float64) *Calculator {
	if maxBonus <= 0 {
		maxBonus = DefaultMaxBonus
	}
	return &Calculator{maxBonus: maxBonus}
}

// Bonus is the capped percentage plus the factors and trace lines behind it.
type Bonus struct {
	Percent float64
	Factors []string
	Lines   []string
}

func (c *Calculator) ComputeBonus(subject *models.SubjectProfile) (float64, []string) {
	b := c.Compute(subject)
	return b.Percent, b.Factors
}

func (c *Calculator) Compute(subject *models.SubjectProfile) Bonus {
	b := Bonus{Factors: []string{}}
	if subject == nil {
		return b
	}

	var total float64
	add := func(points float64, factor, line string) {
		total += points
		b.Factors = append(b.Factors, factor)
		b.Lines = append(b.Lines, fmt.Sprintf("(diversity-bonus %s) -> +%.0f", line, points))
	}

	if eth := strings.TrimSpace(subject.Ethnicity); eth != "" {
		if _, ok := underrepresentedEthnicities[strings.ToLower(eth)]; ok {
			add(ethnicityBonus, "underrepresented_ethnicity:"+eth, "ethnicity "+eth)
		}
	}
	if strings.EqualFold(strings.TrimSpace(subject.Gender), "female") {
		add(femaleBonus, "gender:female", "gender female")
	}
	if isRural(subject.Location) {
		add(ruralBonus, "location:rural", "location rural")
	}
	if strings.Contains(subject.AgeRange, "65") {
		add(seniorBonus, "age:65+", "age 65+")
	}

	b.Percent = min(total, c.maxBonus)
	return b
}

func isRural(location string) bool {
	loc := strings.ToLower(location)
	for _, kw := range ruralKeywords {
		if strings.Contains(loc, kw) {
			return true
		}
	}
	return false
}
