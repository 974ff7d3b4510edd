// internal/matching/rules/trace.go
package rules

import (
	"fmt"
	"time"

	"trial-matcher/internal/models"
)

// Trace is the audit log of one evaluation. Apart from the timestamp line
// its content depends only on the inputs.
type Trace struct {
	Subject   string
	Offering  string
	Timestamp time.Time

	decisions   []string
	adjustments []string
	scores      []models.RuleScore
	eligible    bool
}

// Adjust records a post-gate adjustment such as a diversity bonus.
func (t *Trace) Adjust(line string) {
	t.adjustments = append(t.adjustments, line)
}

func (t *Trace) Lines() []string {
	return t.lines(true)
}

// StableLines omits the timestamp, so equal inputs give equal output.
func (t *Trace) StableLines() []string {
	return t.lines(false)
}

func (t *Trace) lines(withTimestamp bool) []string {
	lines := []string{
		";; reasoning trace",
		";; subject: " + t.Subject,
		";; offering: " + t.Offering,
	}
	if withTimestamp {
		lines = append(lines, ";; timestamp: "+t.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	lines = append(lines, ";; == rules ==")
	for _, d := range t.decisions {
		lines = append(lines, "  "+d)
	}
	if len(t.adjustments) > 0 {
		lines = append(lines, ";; == adjustments ==")
		for _, a := range t.adjustments {
			lines = append(lines, "  "+a)
		}
	}
	lines = append(lines, ";; == scores ==")
	for _, s := range t.scores {
		lines = append(lines, fmt.Sprintf("  (%s) -> %.3f", s.Rule, s.Score))
	}
	return append(lines,
		";; == conclusion ==",
		fmt.Sprintf("(eligible subject offering) -> %t", t.eligible),
	)
}

func (t *Trace) Reasoning() models.ReasoningTrace {
	rules := make([]models.RuleScore, len(t.scores))
	copy(rules, t.scores)
	return models.ReasoningTrace{Lines: t.Lines(), Rules: rules}
}
