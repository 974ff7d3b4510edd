// internal/matching/batch/runner.go
package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/metrics"
	"trial-matcher/internal/matching/evaluator"
	"trial-matcher/internal/matching/prefilter"
	"trial-matcher/internal/models"
)

var ErrInvalidBatchInput = errors.New("INVALID_BATCH_INPUT")

const (
	DefaultMaxConcurrency     = 8
	DefaultPrefilterOverfetch = 2

	tracerName = "trial-matcher/batch"
)

// CandidateEvaluator scores one pair. *evaluator.CandidateEvaluator satisfies it.
type CandidateEvaluator interface {
	Evaluate(ctx context.Context, subjectID string, subject *models.SubjectProfile, offering *models.Offering) (*models.MatchResult, error)
}

// Prefilter narrows the candidate set by embedding similarity.
type Prefilter interface {
	Candidates(ctx context.Context, vector []float32, k int) ([]prefilter.Candidate, error)
}

// Recorder receives per-run candidate counts keyed by outcome.
type Recorder interface {
	RecordBatch(ctx context.Context, counts map[string]int)
}

type Config struct {
	MaxConcurrency     int
	PrefilterOverfetch int
}

// Outcome is a ranked result list plus what happened to every candidate.
type Outcome struct {
	Results     []models.MatchResult
	Evaluated   int
	Failed      int
	Skipped     int
	Filtered    int
	Duplicates  int
	Cancelled   bool
	Prefiltered bool
}

// Runner fans a subject out over many offerings. It keeps no state between
// runs and may be shared.
type Runner struct {
	evaluator CandidateEvaluator
	prefilter Prefilter
	recorder  Recorder
	config    Config
	logger    logger.Logger
	tracer    trace.Tracer
}

type Option func(*Runner)

func WithPrefilter(p Prefilter) Option {
	return func(r *Runner) {
		r.prefilter = p
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

func NewRunner(ev CandidateEvaluator, cfg Config, log logger.Logger, opts ...Option) *Runner {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.PrefilterOverfetch <= 0 {
		cfg.PrefilterOverfetch = DefaultPrefilterOverfetch
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	r := &Runner{
		evaluator: ev,
		config:    cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "batch-runner"}),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run returns the ranked matches at or above minConfidence, at most topK of
// them (topK <= 0 means no limit). After cancellation the results completed
// so far are still returned.
func (r *Runner) Run(ctx context.Context, subjectID string, subject *models.SubjectProfile, offerings []*models.Offering, minConfidence float64, topK int) ([]models.MatchResult, error) {
	out, err := r.RunDetailed(ctx, subjectID, subject, offerings, minConfidence, topK)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (r *Runner) RunDetailed(ctx context.Context, subjectID string, subject *models.SubjectProfile, offerings []*models.Offering, minConfidence float64, topK int) (*Outcome, error) {
	if err := validate(subject, minConfidence); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "match.batch", trace.WithAttributes(
		attribute.String("subject.id", subjectID),
		attribute.Int("candidates", len(offerings)),
	))
	defer span.End()

	out := r.run(ctx, subjectID, subject, offerings, minConfidence, topK)

	span.SetAttributes(
		attribute.Int("evaluated", out.Evaluated),
		attribute.Int("failed", out.Failed),
		attribute.Int("returned", len(out.Results)),
	)
	if out.Cancelled {
		span.SetStatus(codes.Error, "cancelled")
	}
	return out, nil
}

// RunPrefiltered asks the prefilter for topK times the overfetch factor
// nearest offerings and evaluates only those. Any prefilter problem falls
// back to evaluating every offering.
func (r *Runner) RunPrefiltered(ctx context.Context, subjectID string, subject *models.SubjectProfile, offerings []*models.Offering, vector []float32, minConfidence float64, topK int) (*Outcome, error) {
	if err := validate(subject, minConfidence); err != nil {
		return nil, err
	}
	if r.prefilter == nil || len(vector) == 0 {
		return r.RunDetailed(ctx, subjectID, subject, offerings, minConfidence, topK)
	}

	k := len(offerings)
	if topK > 0 {
		k = min(topK*r.config.PrefilterOverfetch, len(offerings))
	}
	if k == 0 {
		return r.RunDetailed(ctx, subjectID, subject, offerings, minConfidence, topK)
	}

	hits, err := r.prefilter.Candidates(ctx, vector, k)
	if err != nil || len(hits) == 0 {
		fields := map[string]interface{}{"subjectId": subjectID, "k": k}
		if err != nil {
			fields["error"] = err.Error()
		}
		r.logger.Warn("prefilter unavailable, evaluating all candidates", fields)
		return r.RunDetailed(ctx, subjectID, subject, offerings, minConfidence, topK)
	}

	selected := selectOfferings(offerings, hits)
	if len(selected) == 0 {
		r.logger.Warn("prefilter returned no known offerings, evaluating all candidates", map[string]interface{}{
			"subjectId": subjectID,
			"hits":      len(hits),
		})
		return r.RunDetailed(ctx, subjectID, subject, offerings, minConfidence, topK)
	}

	out, err := r.RunDetailed(ctx, subjectID, subject, selected, minConfidence, topK)
	if err != nil {
		return nil, err
	}
	out.Prefiltered = true
	return out, nil
}

func validate(subject *models.SubjectProfile, minConfidence float64) error {
	if subject == nil {
		return fmt.Errorf("%w: subject profile is nil", evaluator.ErrInvalidSubject)
	}
	if math.IsNaN(minConfidence) || minConfidence < 0 || minConfidence > 100 {
		return fmt.Errorf("%w: minConfidence %v outside [0,100]", ErrInvalidBatchInput, minConfidence)
	}
	return nil
}

type slotState int

const (
	slotSkipped slotState = iota
	slotDone
	slotFailed
)

func (r *Runner) run(ctx context.Context, subjectID string, subject *models.SubjectProfile, offerings []*models.Offering, minConfidence float64, topK int) *Outcome {
	start := time.Now()
	out := &Outcome{}

	unique, dups := dedupe(offerings)
	out.Duplicates = dups

	results := make([]*models.MatchResult, len(unique))
	states := make([]slotState, len(unique))

	var g errgroup.Group
	g.SetLimit(r.config.MaxConcurrency)

	for i, offering := range unique {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := r.evaluateOne(ctx, subjectID, subject, offering)
			if err != nil {
				states[i] = slotFailed
				r.logger.Error("candidate evaluation failed", map[string]interface{}{
					"subjectId":  subjectID,
					"offeringId": offeringID(offering),
					"error":      err.Error(),
				})
				return nil
			}
			results[i] = res
			states[i] = slotDone
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]models.MatchResult, 0, len(unique))
	for i, st := range states {
		switch st {
		case slotFailed:
			out.Failed++
		case slotSkipped:
			out.Skipped++
		case slotDone:
			out.Evaluated++
			if results[i].Confidence >= minConfidence {
				kept = append(kept, *results[i])
			} else {
				out.Filtered++
			}
		}
	}

	Rank(kept)
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	out.Results = kept
	out.Cancelled = ctx.Err() != nil

	elapsed := time.Since(start)
	metrics.MatchBatchDuration.Observe(elapsed.Seconds())
	if r.recorder != nil {
		r.recorder.RecordBatch(ctx, map[string]int{
			"evaluated": out.Evaluated,
			"failed":    out.Failed,
			"skipped":   out.Skipped,
		})
	}

	r.logger.Info("batch match completed", map[string]interface{}{
		"subjectId":  subjectID,
		"candidates": len(offerings),
		"evaluated":  out.Evaluated,
		"failed":     out.Failed,
		"skipped":    out.Skipped,
		"filtered":   out.Filtered,
		"returned":   len(out.Results),
		"cancelled":  out.Cancelled,
		"durationMs": elapsed.Milliseconds(),
	})
	return out
}

func (r *Runner) evaluateOne(ctx context.Context, subjectID string, subject *models.SubjectProfile, offering *models.Offering) (res *models.MatchResult, err error) {
	ctx, span := r.tracer.Start(ctx, "match.candidate", trace.WithAttributes(
		attribute.String("offering.id", offeringID(offering)),
	))
	defer span.End()

	// The evaluator recovers its own scoring panics; this guards other
	// implementations so one candidate cannot take down the batch.
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("%w: offering %s: %v", evaluator.ErrCandidateEvaluation, offeringID(offering), p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation failed")
		}
	}()

	res, err = r.evaluator.Evaluate(ctx, subjectID, subject, offering)
	if err == nil && res == nil {
		err = fmt.Errorf("%w: offering %s: no result", evaluator.ErrCandidateEvaluation, offeringID(offering))
	}
	if res != nil {
		span.SetAttributes(
			attribute.Float64("confidence", res.Confidence),
			attribute.String("tier", string(res.Tier)),
		)
	}
	return res, err
}

// Rank sorts by confidence descending, then offering id ascending.
func Rank(results []models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].OfferingID < results[j].OfferingID
	})
}

// dedupe keeps the first offering for each non-empty id.
func dedupe(offerings []*models.Offering) ([]*models.Offering, int) {
	seen := make(map[string]struct{}, len(offerings))
	out := make([]*models.Offering, 0, len(offerings))
	dups := 0
	for _, o := range offerings {
		if o != nil && o.ID != "" {
			if _, ok := seen[o.ID]; ok {
				dups++
				continue
			}
			seen[o.ID] = struct{}{}
		}
		out = append(out, o)
	}
	return out, dups
}

// selectOfferings keeps the offerings named by hits, in hit order.
func selectOfferings(offerings []*models.Offering, hits []prefilter.Candidate) []*models.Offering {
	byID := make(map[string]*models.Offering, len(offerings))
	for _, o := range offerings {
		if o == nil {
			continue
		}
		if _, ok := byID[o.ID]; !ok {
			byID[o.ID] = o
		}
	}

	out := make([]*models.Offering, 0, len(hits))
	for _, h := range hits {
		if o, ok := byID[h.OfferingID]; ok {
			out = append(out, o)
			delete(byID, h.OfferingID)
		}
	}
	return out
}

func offeringID(o *models.Offering) string {
	if o == nil {
		return ""
	}
	return o.ID
}
