// internal/workers/matching/match-trials/config.go
package matchtrials

import (
	"fmt"
	"time"

	"trial-matcher/internal/common/config"
)

const DefaultFinalizeTimeout = 10 * time.Second

type Config struct {
	Enabled       bool
	MaxJobsActive int
	Timeout       time.Duration
	MinConfidence float64
	TopK          int
	Persist       bool
	Notify        bool

	// FinalizeTimeout bounds saving results and reporting back to Zeebe,
	// which may happen after the job deadline has passed.
	FinalizeTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 4,
		Timeout:       120 * time.Second,
		MinConfidence: 40,
		TopK:          10,
		Persist:       true,

		FinalizeTimeout: DefaultFinalizeTimeout,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.FinalizeTimeout <= 0 {
		return fmt.Errorf("finalize timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be within [0, 100]")
	}
	if c.TopK < 0 {
		return fmt.Errorf("top_k must not be negative")
	}
	return nil
}

// ConfigFromApp overlays the worker and matching sections of the
// application config onto the defaults.
func ConfigFromApp(appConfig *config.Config) *Config {
	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if workerCfg, exists := appConfig.Workers[TaskType]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = time.Duration(workerCfg.Timeout) * time.Millisecond
		}
	}

	cfg.MinConfidence = appConfig.Matching.MinConfidence
	cfg.TopK = appConfig.Matching.TopK
	cfg.Notify = appConfig.Notifications.Enabled
	return cfg
}
