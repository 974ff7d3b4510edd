// internal/workers/matching/score-candidate/models.go
package scorecandidate

import "trial-matcher/internal/models"

type Input struct {
	SubjectID  string                 `json:"subjectId"`
	OfferingID string                 `json:"offeringId"`
	Subject    *models.SubjectProfile `json:"subject,omitempty"`
	Offering   *models.Offering       `json:"offering,omitempty"`
	Persist    *bool                  `json:"persist,omitempty"`
}

type Output struct {
	Match      *models.MatchResult   `json:"match"`
	MatchID    string                `json:"matchId,omitempty"`
	Eligible   bool                  `json:"eligible"`
	Confidence float64               `json:"confidence"`
	Tier       models.ConfidenceTier `json:"tier"`
	Persisted  bool                  `json:"persisted"`
}
