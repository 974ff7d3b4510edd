// internal/matching/criteria/age.go
package criteria

import (
	"fmt"
	"strconv"
	"strings"
)

const openEndedAgeMax = 120

// AgeRange is an inclusive age interval. The zero value is Unknown.
type AgeRange struct {
	Min   int
	Max   int
	Known bool
}

// Unknown is returned for absent or malformed age data.
var Unknown = AgeRange{}

// ParseAgeRange accepts "A-B", "A+" and "A". Anything else, including an
// inverted interval, is Unknown rather than an error. Upper bounds are
// capped at 120, so a lower bound above that is Unknown too.
func ParseAgeRange(input string) AgeRange {
	s := strings.TrimSpace(input)
	if s == "" {
		return Unknown
	}

	var lo, hi int
	var err error
	switch {
	case strings.Contains(s, "-"):
		parts := strings.Split(strings.ReplaceAll(s, "+", ""), "-")
		if len(parts) != 2 {
			return Unknown
		}
		if lo, err = atoi(parts[0]); err != nil {
			return Unknown
		}
		if hi, err = atoi(parts[1]); err != nil {
			return Unknown
		}
	case strings.HasSuffix(s, "+"):
		if lo, err = atoi(strings.TrimSuffix(s, "+")); err != nil {
			return Unknown
		}
		hi = openEndedAgeMax
	default:
		if lo, err = atoi(s); err != nil {
			return Unknown
		}
		hi = lo
	}

	hi = min(hi, openEndedAgeMax)
	if lo < 0 || lo > hi {
		return Unknown
	}
	return AgeRange{Min: lo, Max: hi, Known: true}
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Span is the number of whole years covered, counting both ends.
func (r AgeRange) Span() int {
	if !r.Known {
		return 0
	}
	return r.Max - r.Min + 1
}

// Overlap counts the years shared with [lo, hi], both ends inclusive.
func (r AgeRange) Overlap(lo, hi int) int {
	if !r.Known {
		return 0
	}
	from, to := max(r.Min, lo), min(r.Max, hi)
	if from > to {
		return 0
	}
	return to - from + 1
}

// Intersects reports whether any year is shared with [lo, hi].
func (r AgeRange) Intersects(lo, hi int) bool {
	return r.Overlap(lo, hi) > 0
}

func (r AgeRange) String() string {
	if !r.Known {
		return "unknown"
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}
