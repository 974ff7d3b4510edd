// internal/workers/matching/match-trials/handler.go
package matchtrials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "trial-matcher/internal/common/errors"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/metrics"
	"trial-matcher/internal/matching/batch"
	"trial-matcher/internal/matching/evaluator"
	"trial-matcher/internal/models"
	"trial-matcher/internal/store"
	"trial-matcher/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "match-trials"

type SubjectSource interface {
	GetSubject(ctx context.Context, id string) (*models.SubjectProfile, error)
}

type OfferingSource interface {
	ListOfferings(ctx context.Context, ids []string) ([]*models.Offering, error)
}

// SubjectCache drops a cached profile so the next read is fresh.
type SubjectCache interface {
	InvalidateSubject(ctx context.Context, id string) error
}

type MatchRecorder interface {
	SaveMatches(ctx context.Context, results []*models.MatchResult) ([]string, error)
}

type Notifier interface {
	NotifyMatches(ctx context.Context, subjectID string, results []*models.MatchResult) (bool, error)
}

type BatchRunner interface {
	RunPrefiltered(ctx context.Context, subjectID string, subject *models.SubjectProfile, offerings []*models.Offering, vector []float32, minConfidence float64, topK int) (*batch.Outcome, error)
}

type Dependencies struct {
	Subjects  SubjectSource
	Cache     SubjectCache
	Offerings OfferingSource
	Matches   MatchRecorder
	Notifier  Notifier
	Runner    BatchRunner
	Activity  *registry.Activity
}

type HandlerOptions struct {
	Config *Config
	Deps   Dependencies
	Logger logger.Logger
}

type Handler struct {
	config       *Config
	deps         Dependencies
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Deps.Runner == nil || opts.Deps.Offerings == nil {
		return nil, fmt.Errorf("%s requires a batch runner and an offering source", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       cfg,
		deps:         opts.Deps,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)

	// The job deadline may have expired during the batch; Zeebe still
	// needs the answer.
	replyCtx, replyCancel := h.finalizeContext(ctx)
	defer replyCancel()

	if err != nil {
		h.fail(replyCtx, client, job, err)
		return
	}

	h.completeJob(replyCtx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("parse variables: %v", err))
	}

	if h.deps.Activity != nil {
		violations, err := h.deps.Activity.ValidateInput(variables)
		if err != nil {
			return nil, apperrors.NewInputValidationFailedError(err.Error())
		}
		if len(violations) > 0 {
			return nil, apperrors.NewInputValidationFailedError(registry.Summarize(violations))
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("decode variables: %v", err))
	}
	return &input, nil
}

// Execute runs one matching batch. It is the whole job minus the Zeebe
// plumbing, so tests and callers outside a worker can use it directly.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.SubjectID == "" {
		return nil, apperrors.NewInvalidSubjectError("subjectId is required")
	}

	subject, err := h.resolveSubject(ctx, input)
	if err != nil {
		return nil, err
	}

	offerings, err := h.deps.Offerings.ListOfferings(ctx, input.OfferingIDs)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError("trials", err)
	}

	minConfidence := h.config.MinConfidence
	if input.MinConfidence != nil {
		minConfidence = *input.MinConfidence
	}
	topK := h.config.TopK
	if input.TopK != nil {
		topK = *input.TopK
	}

	batchCtx, batchCancel := h.batchContext(ctx)
	outcome, err := h.deps.Runner.RunPrefiltered(batchCtx, input.SubjectID, subject, offerings, input.QueryVector, minConfidence, topK)
	batchCancel()
	if err != nil {
		switch {
		case errors.Is(err, evaluator.ErrInvalidSubject):
			return nil, apperrors.NewInvalidSubjectError(err.Error())
		case errors.Is(err, batch.ErrInvalidBatchInput):
			return nil, apperrors.NewInvalidBatchInputError(err.Error())
		default:
			return nil, apperrors.NewInternalError(err)
		}
	}

	output := &Output{
		Matches:     outcome.Results,
		MatchCount:  len(outcome.Results),
		Evaluated:   outcome.Evaluated,
		Failed:      outcome.Failed,
		Skipped:     outcome.Skipped,
		Cancelled:   outcome.Cancelled,
		Prefiltered: outcome.Prefiltered,
		MatchIDs:    []string{},
	}
	if output.Matches == nil {
		output.Matches = []models.MatchResult{}
	}

	results := make([]*models.MatchResult, len(outcome.Results))
	for i := range outcome.Results {
		results[i] = &outcome.Results[i]
	}

	// Completed matches are kept even when the batch was cut short.
	finalCtx, finalCancel := h.finalizeContext(ctx)
	defer finalCancel()

	if boolOr(input.Persist, h.config.Persist) && h.deps.Matches != nil && len(results) > 0 {
		ids, err := h.deps.Matches.SaveMatches(finalCtx, results)
		if err != nil {
			return nil, apperrors.NewMatchPersistFailedError(err)
		}
		output.MatchIDs = ids
	}

	if boolOr(input.Notify, h.config.Notify) && h.deps.Notifier != nil {
		sent, err := h.deps.Notifier.NotifyMatches(finalCtx, input.SubjectID, results)
		if err != nil {
			stdErr := apperrors.NewNotificationFailedError("sns", err)
			h.logger.Warn("match notification failed", map[string]interface{}{
				"subjectId": input.SubjectID,
				"errorCode": string(stdErr.Code),
				"details":   stdErr.Details,
			})
		}
		output.Notified = sent
	}

	h.logger.Info("matching batch completed", map[string]interface{}{
		"subjectId":  input.SubjectID,
		"candidates": len(offerings),
		"matches":    output.MatchCount,
		"failed":     output.Failed,
		"persisted":  len(output.MatchIDs),
		"cancelled":  output.Cancelled,
	})

	return output, nil
}

// batchContext ends the batch early enough to leave FinalizeTimeout (or
// half of what remains, if less) for saving and reporting.
func (h *Handler) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := min(h.config.FinalizeTimeout, time.Until(deadline)/2)
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

func (h *Handler) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.config.FinalizeTimeout)
}

func (h *Handler) resolveSubject(ctx context.Context, input *Input) (*models.SubjectProfile, error) {
	if input.Subject != nil {
		return input.Subject, nil
	}
	if h.deps.Subjects == nil {
		return nil, apperrors.NewInvalidSubjectError("no subject profile supplied and no subject store configured")
	}

	if boolOr(input.RefreshSubject, false) && h.deps.Cache != nil {
		if err := h.deps.Cache.InvalidateSubject(ctx, input.SubjectID); err != nil {
			h.logger.Warn("failed to invalidate cached subject profile", map[string]interface{}{
				"subjectId": input.SubjectID,
				"error":     err,
			})
		}
	}

	subject, err := h.deps.Subjects.GetSubject(ctx, input.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrSubjectNotFound) {
			return nil, apperrors.NewSubjectNotFoundError(input.SubjectID)
		}
		return nil, apperrors.NewStoreQueryFailedError("patients", err)
	}
	return subject, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func extractErrorCode(err error) string {
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return string(stdErr.Code)
	}
	return string(apperrors.ErrCodeInternal)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
