// internal/workers/matching/score-candidate/handler.go
package scorecandidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "trial-matcher/internal/common/errors"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/metrics"
	"trial-matcher/internal/matching/evaluator"
	"trial-matcher/internal/models"
	"trial-matcher/internal/store"
	"trial-matcher/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "score-candidate"

type SubjectSource interface {
	GetSubject(ctx context.Context, id string) (*models.SubjectProfile, error)
}

type OfferingSource interface {
	ListOfferings(ctx context.Context, ids []string) ([]*models.Offering, error)
}

type MatchRecorder interface {
	SaveMatches(ctx context.Context, results []*models.MatchResult) ([]string, error)
}

type CandidateEvaluator interface {
	Evaluate(ctx context.Context, subjectID string, subject *models.SubjectProfile, offering *models.Offering) (*models.MatchResult, error)
}

type Dependencies struct {
	Subjects  SubjectSource
	Offerings OfferingSource
	Matches   MatchRecorder
	Evaluator CandidateEvaluator
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
	if opts.Deps.Evaluator == nil {
		return nil, fmt.Errorf("%s requires a candidate evaluator", TaskType)
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

// Execute scores one subject and offering pair.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.SubjectID == "" {
		return nil, apperrors.NewInvalidSubjectError("subjectId is required")
	}

	subject, err := h.resolveSubject(ctx, input)
	if err != nil {
		return nil, err
	}
	offering, err := h.resolveOffering(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := h.deps.Evaluator.Evaluate(ctx, input.SubjectID, subject, offering)
	if err != nil {
		if errors.Is(err, evaluator.ErrInvalidSubject) {
			return nil, apperrors.NewInvalidSubjectError(err.Error())
		}
		return nil, apperrors.NewCandidateEvaluationError(offering.ID, err)
	}

	output := &Output{
		Match:      result,
		Eligible:   result.Eligible,
		Confidence: result.Confidence,
		Tier:       result.Tier,
	}

	persist := h.config.Persist
	if input.Persist != nil {
		persist = *input.Persist
	}
	if persist && h.deps.Matches != nil {
		// A slow explanation may have used up the job deadline; the score
		// itself is still worth keeping.
		saveCtx, saveCancel := h.finalizeContext(ctx)
		ids, err := h.deps.Matches.SaveMatches(saveCtx, []*models.MatchResult{result})
		saveCancel()
		if err != nil {
			return nil, apperrors.NewMatchPersistFailedError(err)
		}
		if len(ids) > 0 {
			output.MatchID = ids[0]
			output.Persisted = true
		}
	}

	h.logger.Info("candidate scored", map[string]interface{}{
		"subjectId":  input.SubjectID,
		"offeringId": offering.ID,
		"confidence": result.Confidence,
		"tier":       string(result.Tier),
		"eligible":   result.Eligible,
	})

	return output, nil
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

	subject, err := h.deps.Subjects.GetSubject(ctx, input.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrSubjectNotFound) {
			return nil, apperrors.NewSubjectNotFoundError(input.SubjectID)
		}
		return nil, apperrors.NewStoreQueryFailedError("patients", err)
	}
	return subject, nil
}

func (h *Handler) resolveOffering(ctx context.Context, input *Input) (*models.Offering, error) {
	if input.Offering != nil {
		if input.Offering.ID == "" {
			input.Offering.ID = input.OfferingID
		}
		return input.Offering, nil
	}
	if input.OfferingID == "" {
		return nil, apperrors.NewCandidateEvaluationError("", "offeringId is required")
	}
	if h.deps.Offerings == nil {
		return nil, apperrors.NewCandidateEvaluationError(input.OfferingID, "no offering supplied and no offering store configured")
	}

	offerings, err := h.deps.Offerings.ListOfferings(ctx, []string{input.OfferingID})
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError("trials", err)
	}
	for _, o := range offerings {
		if o != nil && o.ID == input.OfferingID {
			return o, nil
		}
	}
	return nil, apperrors.NewCandidateEvaluationError(input.OfferingID, "offering not found or inactive")
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
	code := string(apperrors.ErrCodeInternal)
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		code = string(stdErr.Code)
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
