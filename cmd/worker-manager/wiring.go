// cmd/worker-manager/wiring.go
package main

import (
	"context"
	"fmt"
	"time"

	"trial-matcher/internal/common/config"
	apphttp "trial-matcher/internal/common/http"
	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/common/observability"
	"trial-matcher/internal/matching/confidence"
	"trial-matcher/internal/matching/explain"
	"trial-matcher/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

func policyFromConfig(m config.MatchingConfig) (confidence.Policy, error) {
	p := confidence.Policy{
		Weights: confidence.Weights{
			Age:              m.Weights.Age,
			Gender:           m.Weights.Gender,
			Biomarker:        m.Weights.Biomarker,
			Condition:        m.Weights.Condition,
			Contraindication: m.Weights.Contraindication,
		},
		CriticalThreshold: m.CriticalThreshold,
		IneligiblePenalty: m.IneligiblePenalty,
	}
	if err := p.Validate(); err != nil {
		return confidence.Policy{}, err
	}
	return p, nil
}

func explainConfig(ec config.ExplanationConfig) explain.Config {
	def := explain.DefaultConfig()
	cfg := explain.Config{
		AttemptTimeout:    config.GetDuration(ec.TimeoutMs),
		MaxAttempts:       ec.MaxAttempts,
		BackoffMin:        config.GetDuration(ec.BackoffMinMs),
		BackoffMax:        config.GetDuration(ec.BackoffMaxMs),
		MaxReasoningChars: def.MaxReasoningChars,
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return cfg
}

// newExplanationProvider returns nil when no provider can be built; the
// explanation service then always uses the templated fallback.
func newExplanationProvider(ctx context.Context, ec config.ExplanationConfig, log logger.Logger) explain.Provider {
	gen := explain.GenerationConfig{
		Model:       ec.Model,
		MaxTokens:   ec.MaxTokens,
		Temperature: ec.Temperature,
		HTTPClient:  apphttp.NewClient(explainConfig(ec).AttemptTimeout, "trial-matcher"),
	}

	var (
		provider explain.Provider
		err      error
	)
	switch ec.Provider {
	case "openai":
		provider, err = explain.NewOpenAIProvider(ec.APIKey, ec.BaseURL, gen)
	default:
		provider, err = explain.NewGeminiProvider(ctx, ec.APIKey, gen)
	}
	if err != nil {
		log.Warn("explanation provider unavailable, using fallback text", map[string]interface{}{
			"provider": ec.Provider,
			"error":    err,
		})
		return nil
	}
	return provider
}

func newExplainer(ctx context.Context, ec config.ExplanationConfig, rdb redis.Cmdable, log logger.Logger) *explain.Service {
	var cache explain.Cache
	if rdb != nil && ec.CacheTTLSeconds > 0 {
		cache = explain.NewRedisCache(rdb, time.Duration(ec.CacheTTLSeconds)*time.Second)
	}
	return explain.NewService(newExplanationProvider(ctx, ec, log), cache, explainConfig(ec), log)
}

// loadRegistry prefers the file named in config and falls back to the
// registry compiled into the binary.
func loadRegistry(path string, log logger.Logger) (*registry.ActivityRegistry, error) {
	if path != "" {
		reg, err := registry.LoadRegistry(path)
		if err == nil {
			return reg, reg.Validate()
		}
		log.Warn("activity registry file unavailable, using embedded copy", map[string]interface{}{
			"path":  path,
			"error": err,
		})
	}
	reg, err := registry.Default()
	if err != nil {
		return nil, fmt.Errorf("embedded registry: %w", err)
	}
	return reg, reg.Validate()
}

// explainBudget bounds one explanation step: every attempt plus the longest
// backoff between them.
func explainBudget(cfg explain.Config) time.Duration {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return time.Duration(attempts)*cfg.AttemptTimeout + time.Duration(attempts-1)*cfg.BackoffMax
}

// instrument records otel job metrics around a worker handler. A panicking
// handler is logged and left for Zeebe to retry once the job times out.
func instrument(obs *observability.Observability, handler worker.JobHandler, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		status := "handled"
		defer func() {
			if r := recover(); r != nil {
				status = "panicked"
				log.Error("job handler panicked", map[string]interface{}{
					"taskType": job.GetType(),
					"jobKey":   job.GetKey(),
					"panic":    fmt.Sprint(r),
				})
			}
			ctx := context.Background()
			obs.RecordJobProcessed(ctx, status)
			obs.RecordJobDuration(ctx, time.Since(start), status)
		}()
		handler(client, job)
	}
}
