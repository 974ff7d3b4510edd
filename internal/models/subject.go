// internal/models/subject.go
package models

import (
	"sort"
	"strings"
)

// SubjectProfile is the patient record being matched. Every field may be
// empty; missing data degrades rule scores, it never fails an evaluation.
type SubjectProfile struct {
	AgeRange    string            `json:"ageRange,omitempty"`
	Gender      string            `json:"gender,omitempty"`
	Conditions  []string          `json:"conditions"`
	Biomarkers  map[string]string `json:"biomarkers"`
	Medications []string          `json:"medications"`
	Ethnicity   string            `json:"ethnicity,omitempty"`
	Location    string            `json:"location,omitempty"`
}

// Biomarker looks a marker up case-insensitively. Values are returned as stored.
func (s *SubjectProfile) Biomarker(name string) (string, bool) {
	if s == nil || len(s.Biomarkers) == 0 {
		return "", false
	}
	if v, ok := s.Biomarkers[name]; ok {
		return v, true
	}
	want := strings.ToLower(strings.TrimSpace(name))
	// iterate in key order so duplicate spellings resolve the same way every time
	keys := make([]string, 0, len(s.Biomarkers))
	for k := range s.Biomarkers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return s.Biomarkers[k], true
		}
	}
	return "", false
}

// Summary renders the demographics line used in trace headers.
func (s *SubjectProfile) Summary() string {
	age, gender := "unknown", "unknown"
	if s.AgeRange != "" {
		age = s.AgeRange
	}
	if s.Gender != "" {
		gender = s.Gender
	}
	return age + " " + gender
}
