// internal/matching/explain/prompt.go
package explain

import (
	"fmt"
	"sort"
	"strings"

	"trial-matcher/internal/models"
)

const DefaultMaxReasoningChars = 1000

// Request is everything the explanation is allowed to see.
type Request struct {
	Subject    *models.SubjectProfile
	Offering   *models.Offering
	Eligible   bool
	Confidence float64
	Reasoning  string
}

// Fallback is returned whenever generation fails. It depends only on the
// confidence so identical failures produce identical text.
func Fallback(confidence float64) string {
	return fmt.Sprintf("This trial has a %.0f%% match confidence based on your medical profile.", confidence)
}

func BuildPrompt(req Request, maxReasoning int) string {
	s, o := req.Subject, req.Offering
	if s == nil {
		s = &models.SubjectProfile{}
	}
	if o == nil {
		o = &models.Offering{}
	}
	verdict := "is"
	if !req.Eligible {
		verdict = "is not"
	}
	lo, hi := o.AgeBounds()

	var parts []string
	parts = append(parts, fmt.Sprintf("You are a clinical trial matching expert. Explain clearly and with empathy why this patient %s a good match for the clinical trial below.", verdict))

	parts = append(parts, "\nPatient profile:")
	parts = append(parts, "- Age range: "+orDefault(s.AgeRange, "Not provided"))
	parts = append(parts, "- Gender: "+orDefault(s.Gender, "Not provided"))
	parts = append(parts, "- Conditions: "+orDefault(strings.Join(s.Conditions, ", "), "None listed"))
	parts = append(parts, "- Biomarkers: "+orDefault(formatMap(s.Biomarkers), "None listed"))
	parts = append(parts, "- Current medications: "+orDefault(strings.Join(s.Medications, ", "), "None listed"))

	parts = append(parts, "\nClinical trial:")
	parts = append(parts, "- ID: "+o.Label())
	parts = append(parts, "- Title: "+orDefault(o.Title, "Not provided"))
	parts = append(parts, "- Phase: "+orDefault(o.Phase, "Not provided"))
	parts = append(parts, "- Target conditions: "+orDefault(strings.Join(o.Conditions, ", "), "None listed"))
	parts = append(parts, fmt.Sprintf("- Age requirement: %d-%d years", lo, hi))
	parts = append(parts, "- Gender: "+o.GenderRequirement())
	parts = append(parts, "- Required biomarkers: "+orDefault(formatMap(o.RequiredBiomarkers), "None"))

	parts = append(parts, "\nRule analysis:")
	parts = append(parts, truncate(req.Reasoning, maxReasoning))
	parts = append(parts, fmt.Sprintf("\nMatch confidence: %.1f%%", req.Confidence))

	parts = append(parts, "\nWrite a 2-3 sentence explanation that:")
	parts = append(parts, "- summarizes the key matching factors")
	parts = append(parts, "- highlights any concerns or strengths")
	parts = append(parts, "- is written in patient-friendly language")
	parts = append(parts, "\nExplanation:")

	return strings.Join(parts, "\n")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func formatMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return strings.Join(pairs, ", ")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
