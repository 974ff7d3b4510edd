// internal/models/match.go
package models

import (
	"strings"
	"time"
)

type ConfidenceTier string

const (
	TierHigh     ConfidenceTier = "high"
	TierMedium   ConfidenceTier = "medium"
	TierLow      ConfidenceTier = "low"
	TierMarginal ConfidenceTier = "marginal"
)

// Rule names, in evaluation order.
const (
	RuleAgeInRange          = "age-in-range"
	RuleGenderEligible      = "gender-eligible"
	RuleBiomarkerMatch      = "biomarker-match"
	RuleConditionMatch      = "condition-match"
	RuleNoContraindications = "no-contraindications"
)

type RuleScore struct {
	Rule  string  `json:"rule"`
	Score float64 `json:"score"`
	Trace string  `json:"trace"`
}

// CriteriaCheck is one display row of an inclusion or exclusion checklist.
type CriteriaCheck struct {
	Criterion string `json:"criterion"`
	Passed    bool   `json:"passed"`
	Value     string `json:"value"`
	Required  string `json:"required"`
	Reasoning string `json:"reasoning"`
}

// ReasoningTrace is the audit log of a single evaluation.
type ReasoningTrace struct {
	Lines []string    `json:"lines"`
	Rules []RuleScore `json:"rules"`
}

func (t ReasoningTrace) String() string {
	return strings.Join(t.Lines, "\n")
}

// Explanation sources.
const (
	ExplanationGenerated = "generated"
	ExplanationCached    = "cached"
	ExplanationFallback  = "fallback"
)

type MatchResult struct {
	MatchID           string          `json:"matchId"`
	SubjectID         string          `json:"subjectId"`
	OfferingID        string          `json:"offeringId"`
	Confidence        float64         `json:"confidence"`
	BaseConfidence    float64         `json:"baseConfidence"`
	Tier              ConfidenceTier  `json:"tier"`
	Eligible          bool            `json:"eligible"`
	DiversityBonus    float64         `json:"diversityBonus"`
	DiversityFactors  []string        `json:"diversityFactors"`
	InclusionChecks   []CriteriaCheck `json:"inclusionChecks"`
	ExclusionChecks   []CriteriaCheck `json:"exclusionChecks"`
	Reasoning         ReasoningTrace  `json:"reasoning"`
	Explanation       string          `json:"explanation,omitempty"`
	ExplanationSource string          `json:"explanationSource,omitempty"`
	EvaluatedAt       time.Time       `json:"evaluatedAt"`
}

// MatchedCriteria returns the criterion text of every passing check.
func (m *MatchResult) MatchedCriteria() []string {
	return m.criteria(true)
}

// UnmatchedCriteria returns the criterion text of every failing check.
func (m *MatchResult) UnmatchedCriteria() []string {
	return m.criteria(false)
}

func (m *MatchResult) criteria(passed bool) []string {
	out := []string{}
	for _, list := range [][]CriteriaCheck{m.InclusionChecks, m.ExclusionChecks} {
		for _, c := range list {
			if c.Passed == passed {
				out = append(out, c.Criterion)
			}
		}
	}
	return out
}
