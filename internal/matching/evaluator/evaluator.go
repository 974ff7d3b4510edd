// internal/matching/evaluator/evaluator.go
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/metrics"
	"trial-matcher/internal/matching/confidence"
	"trial-matcher/internal/matching/diversity"
	"trial-matcher/internal/matching/explain"
	"trial-matcher/internal/matching/report"
	"trial-matcher/internal/matching/rules"
	"trial-matcher/internal/models"
)

var (
	ErrInvalidSubject      = errors.New("INVALID_SUBJECT")
	ErrCandidateEvaluation = errors.New("CANDIDATE_EVALUATION_FAILED")
)

// Scorer is the deterministic rule pass. *rules.Evaluator satisfies it.
type Scorer interface {
	Evaluate(subject *models.SubjectProfile, offering *models.Offering) rules.Evaluation
}

// Explainer decorates a scored match with free text. It must not fail; the
// second return value names the source of the text.
type Explainer interface {
	Explain(ctx context.Context, req explain.Request) (string, string)
}

type Deps struct {
	Scorer    Scorer
	Diversity *diversity.Calculator
	Reports   *report.Builder
	Explainer Explainer

	// ExplainTimeout bounds the whole explanation step, retries included.
	ExplainTimeout time.Duration

	Now    func() time.Time
	NewID  func() string
	Logger logger.Logger
}

// CandidateEvaluator scores one subject against one offering. It holds no
// per-call state and may be shared by concurrent batch workers.
type CandidateEvaluator struct {
	scorer         Scorer
	diversity      *diversity.Calculator
	reports        *report.Builder
	explainer      Explainer
	explainTimeout time.Duration
	now            func() time.Time
	newID          func() string
	logger         logger.Logger
}

func New(deps Deps) *CandidateEvaluator {
	e := &CandidateEvaluator{
		scorer:         deps.Scorer,
		diversity:      deps.Diversity,
		reports:        deps.Reports,
		explainer:      deps.Explainer,
		explainTimeout: deps.ExplainTimeout,
		now:            deps.Now,
		newID:          deps.NewID,
		logger:         deps.Logger,
	}
	if e.scorer == nil {
		e.scorer = rules.NewEvaluator(confidence.DefaultPolicy())
	}
	if e.diversity == nil {
		e.diversity = diversity.NewCalculator(diversity.DefaultMaxBonus)
	}
	if e.reports == nil {
		e.reports = report.NewBuilder()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.logger == nil {
		e.logger = logger.NewNoOpLogger()
	}
	e.logger = e.logger.WithFields(map[string]interface{}{"component": "candidate-evaluator"})
	return e
}

// Evaluate runs the deterministic scoring pipeline and then, if an explainer
// is configured, attaches an explanation. Only scoring failures are returned.
func (e *CandidateEvaluator) Evaluate(ctx context.Context, subjectID string, subject *models.SubjectProfile, offering *models.Offering) (*models.MatchResult, error) {
	if subject == nil {
		return nil, fmt.Errorf("%w: subject profile is nil", ErrInvalidSubject)
	}
	if offering == nil {
		metrics.MatchCandidateFailures.Inc()
		return nil, fmt.Errorf("%w: offering is nil", ErrCandidateEvaluation)
	}

	result, trace, err := e.score(subjectID, subject, offering)
	if err != nil {
		metrics.MatchCandidateFailures.Inc()
		return nil, err
	}

	if e.explainer != nil {
		e.attachExplanation(ctx, result, trace, subject, offering)
	}

	metrics.MatchCandidatesEvaluated.WithLabelValues(string(result.Tier)).Inc()
	return result, nil
}

// score is the synchronous part of Evaluate. A panic anywhere below is a
// bug in this candidate's scoring, reported as ErrCandidateEvaluation.
func (e *CandidateEvaluator) score(subjectID string, subject *models.SubjectProfile, offering *models.Offering) (result *models.MatchResult, trace *rules.Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, trace = nil, nil
			err = fmt.Errorf("%w: offering %s: %v", ErrCandidateEvaluation, offering.ID, r)
		}
	}()

	ev := e.scorer.Evaluate(subject, offering)
	if ev.Trace == nil {
		return nil, nil, fmt.Errorf("%w: offering %s: scorer returned no trace", ErrCandidateEvaluation, offering.ID)
	}

	bonus := e.diversity.Compute(subject)
	final := confidence.Final(ev.BaseConfidence, bonus.Percent)
	for _, line := range bonus.Lines {
		ev.Trace.Adjust(line)
	}
	if len(bonus.Lines) > 0 {
		ev.Trace.Adjust(fmt.Sprintf("(final-confidence %.2f +%.0f) -> %.2f", ev.BaseConfidence, bonus.Percent, final))
	}

	result = &models.MatchResult{
		MatchID:          e.newID(),
		SubjectID:        subjectID,
		OfferingID:       offering.ID,
		Confidence:       final,
		BaseConfidence:   ev.BaseConfidence,
		Tier:             confidence.Classify(final),
		Eligible:         ev.Eligible,
		DiversityBonus:   bonus.Percent,
		DiversityFactors: bonus.Factors,
		InclusionChecks:  e.reports.Inclusion(subject, offering),
		ExclusionChecks:  e.reports.Exclusion(subject, offering),
		Reasoning:        ev.Trace.Reasoning(),
		EvaluatedAt:      e.now().UTC(),
	}
	return result, ev.Trace, nil
}

func (e *CandidateEvaluator) attachExplanation(ctx context.Context, result *models.MatchResult, trace *rules.Trace, subject *models.SubjectProfile, offering *models.Offering) {
	if e.explainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.explainTimeout)
		defer cancel()
	}

	text, source := e.explainer.Explain(ctx, explain.Request{
		Subject:    subject,
		Offering:   offering,
		Eligible:   result.Eligible,
		Confidence: result.Confidence,
		Reasoning:  strings.Join(trace.StableLines(), "\n"),
	})
	result.Explanation = text
	result.ExplanationSource = source

	e.logger.Debug("explanation attached", map[string]interface{}{
		"offeringId": result.OfferingID,
		"source":     source,
	})
}
