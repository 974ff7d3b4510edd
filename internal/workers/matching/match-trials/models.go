// internal/workers/matching/match-trials/models.go
package matchtrials

import "trial-matcher/internal/models"

type Input struct {
	SubjectID      string                 `json:"subjectId"`
	Subject        *models.SubjectProfile `json:"subject,omitempty"`
	RefreshSubject *bool                  `json:"refreshSubject,omitempty"`
	OfferingIDs    []string               `json:"offeringIds,omitempty"`
	MinConfidence  *float64               `json:"minConfidence,omitempty"`
	TopK           *int                   `json:"topK,omitempty"`
	QueryVector    []float32              `json:"queryVector,omitempty"`
	Persist        *bool                  `json:"persist,omitempty"`
	Notify         *bool                  `json:"notify,omitempty"`
}

type Output struct {
	Matches     []models.MatchResult `json:"matches"`
	MatchCount  int                  `json:"matchCount"`
	Evaluated   int                  `json:"evaluated"`
	Failed      int                  `json:"failed"`
	Skipped     int                  `json:"skipped"`
	Cancelled   bool                 `json:"cancelled"`
	Prefiltered bool                 `json:"prefiltered"`
	MatchIDs    []string             `json:"matchIds"`
	Notified    bool                 `json:"notified"`
}
