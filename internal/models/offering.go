// internal/models/offering.go
package models

import (
	"sort"
	"strings"
)

const (
	DefaultAgeMin = 0
	DefaultAgeMax = 120

	GenderAll = "all"
)

// Offering is a clinical trial with its eligibility requirements.
type Offering struct {
	ID                  string            `json:"id"`
	NCTID               string            `json:"nctId,omitempty"`
	Title               string            `json:"title,omitempty"`
	Phase               string            `json:"phase,omitempty"`
	Conditions          []string          `json:"conditions"`
	AgeMin              *int              `json:"ageMin,omitempty"`
	AgeMax              *int              `json:"ageMax,omitempty"`
	Gender              string            `json:"gender,omitempty"`
	RequiredBiomarkers  map[string]string `json:"requiredBiomarkers"`
	ExcludedConditions  []string          `json:"excludedConditions"`
	ExcludedMedications []string          `json:"excludedMedications"`
}

// AgeBounds returns the inclusive age window, defaulting absent or zero
// bounds to 0 and 120.
func (o *Offering) AgeBounds() (int, int) {
	lo, hi := DefaultAgeMin, DefaultAgeMax
	if o.AgeMin != nil && *o.AgeMin > 0 {
		lo = *o.AgeMin
	}
	if o.AgeMax != nil && *o.AgeMax > 0 {
		hi = *o.AgeMax
	}
	return lo, hi
}

// GenderRequirement is the lower-cased gender category, "all" when unset.
func (o *Offering) GenderRequirement() string {
	g := strings.ToLower(strings.TrimSpace(o.Gender))
	if g == "" {
		return GenderAll
	}
	return g
}

// BiomarkerNames returns the required biomarker names in ascending order.
func (o *Offering) BiomarkerNames() []string {
	names := make([]string, 0, len(o.RequiredBiomarkers))
	for name := range o.RequiredBiomarkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Label is the identifier shown in traces: the registry id when known.
func (o *Offering) Label() string {
	if o.NCTID != "" {
		return o.NCTID
	}
	return o.ID
}
