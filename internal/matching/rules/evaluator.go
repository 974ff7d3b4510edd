// internal/matching/rules/evaluator.go
package rules

import (
	"strings"
	"time"

	"trial-matcher/internal/matching/confidence"
	"trial-matcher/internal/models"
)

// Evaluation is the outcome of running every rule against one pair.
type Evaluation struct {
	Eligible       bool
	BaseConfidence float64
	Rules          []models.RuleScore
	Trace          *Trace
}

func (e Evaluation) TraceText() string {
	return strings.Join(e.Trace.Lines(), "\n")
}

// Evaluator holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	policy confidence.Policy
	rules  []Rule
	now    func() time.Time
}

type Option func(*Evaluator)

// WithClock sets the source of the trace timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func NewEvaluator(policy confidence.Policy, opts ...Option) *Evaluator {
	e := &Evaluator{
		policy: policy,
		rules:  DefaultRules(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Policy() confidence.Policy {
	return e.policy
}

func (e *Evaluator) Evaluate(subject *models.SubjectProfile, offering *models.Offering) Evaluation {
	if subject == nil {
		subject = &models.SubjectProfile{}
	}
	if offering == nil {
		offering = &models.Offering{}
	}

	trace := &Trace{
		Subject:   subject.Summary(),
		Offering:  offering.Label(),
		Timestamp: e.now(),
	}

	scores := make([]models.RuleScore, 0, len(e.rules))
	for _, rule := range e.rules {
		score, lines := rule.Apply(subject, offering)
		score = confidence.Clamp(score, 0, 1)
		trace.decisions = append(trace.decisions, lines...)
		scores = append(scores, models.RuleScore{
			Rule:  rule.Name(),
			Score: score,
			Trace: strings.Join(lines, "\n"),
		})
	}

	eligible, base := e.policy.Aggregate(scores)
	trace.scores = scores
	trace.eligible = eligible

	return Evaluation{
		Eligible:       eligible,
		BaseConfidence: base,
		Rules:          scores,
		Trace:          trace,
	}
}
