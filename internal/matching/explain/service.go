// internal/matching/explain/service.go
package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "trial-matcher/internal/common/errors"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/metrics"
	"trial-matcher/internal/models"
)

type Config struct {
	AttemptTimeout    time.Duration
	MaxAttempts       int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	MaxReasoningChars int
}

func DefaultConfig() Config {
	return Config{
		AttemptTimeout:    30 * time.Second,
		MaxAttempts:       3,
		BackoffMin:        2 * time.Second,
		BackoffMax:        10 * time.Second,
		MaxReasoningChars: DefaultMaxReasoningChars,
	}
}

// Service decorates a match with free text. It never fails: exhausted
// retries, timeouts and cancellation all produce the templated fallback.
type Service struct {
	provider Provider
	cache    Cache
	config   Config
	logger   logger.Logger
}

// NewService wires a provider and an optional cache.
func NewService(provider Provider, cache Cache, cfg Config, log logger.Logger) *Service {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = def.BackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if cfg.MaxReasoningChars <= 0 {
		cfg.MaxReasoningChars = def.MaxReasoningChars
	}

	fields := map[string]interface{}{"component": "explain"}
	if provider != nil {
		fields["provider"] = provider.Name()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		config:   cfg,
		logger:   log.WithFields(fields),
	}
}

// Explain returns the explanation text and where it came from.
func (s *Service) Explain(ctx context.Context, req Request) (string, string) {
	prompt := BuildPrompt(req, s.config.MaxReasoningChars)
	key := CacheKey(prompt)

	if s.cache != nil {
		if text, ok := s.cache.Get(ctx, key); ok {
			metrics.MatchExplanations.WithLabelValues(models.ExplanationCached).Inc()
			return text, models.ExplanationCached
		}
	}

	text, err := s.generate(ctx, prompt)
	if err != nil {
		stdErr := explanationError(err)
		s.logger.Warn("explanation unavailable, using fallback", map[string]interface{}{
			"offeringId": offeringID(req),
			"errorCode":  string(stdErr.Code),
			"details":    stdErr.Details,
		})
		metrics.MatchExplanations.WithLabelValues(models.ExplanationFallback).Inc()
		return Fallback(req.Confidence), models.ExplanationFallback
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text); err != nil {
			s.logger.Debug("failed to cache explanation", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	metrics.MatchExplanations.WithLabelValues(models.ExplanationGenerated).Inc()
	return text, models.ExplanationGenerated
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrExplanationFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.backoff(attempt - 1)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrExplanationFailed, ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.config.AttemptTimeout)
		text, err := s.provider.Generate(attemptCtx, prompt)
		cancel()

		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return text, nil
			}
			err = ErrEmptyResponse
		}
		lastErr = err

		s.logger.Debug("explanation attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})

		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: after %d attempts", ErrExplanationTimeout, s.config.MaxAttempts)
	}
	return "", fmt.Errorf("%w: %v", ErrExplanationFailed, lastErr)
}

func explanationError(err error) *apperrors.StandardError {
	if errors.Is(err, ErrExplanationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewExplanationTimeoutError()
	}
	return apperrors.NewExplanationFailedError(err)
}

// backoff doubles from BackoffMin for each retry, capped at BackoffMax.
func (s *Service) backoff(retry int) time.Duration {
	d := s.config.BackoffMin
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= s.config.BackoffMax {
			return s.config.BackoffMax
		}
	}
	return min(d, s.config.BackoffMax)
}

func offeringID(req Request) string {
	if req.Offering == nil {
		return ""
	}
	return req.Offering.ID
}
