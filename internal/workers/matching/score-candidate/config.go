// internal/workers/matching/score-candidate/config.go
package scorecandidate

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
	Persist       bool

	// FinalizeTimeout bounds saving results and reporting back to Zeebe,
	// which may happen after the job deadline has passed.
	FinalizeTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 16,
		Timeout:       60 * time.Second,

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
	return nil
}

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
	return cfg
}
