// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var validate = validator.New()

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like MATCHING_TOP_K
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("Loaded .env from: %s\n", path)
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func envIfEmpty(dst *string, name string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

// overrideEmptyConfig fills secrets that are usually kept out of YAML.
func overrideEmptyConfig(cfg *Config) {
	envIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	envIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	envIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	envIfEmpty(&cfg.Notifications.TopicARN, "MATCH_NOTIFICATION_TOPIC_ARN")

	switch cfg.Matching.Explanation.Provider {
	case "openai":
		envIfEmpty(&cfg.Matching.Explanation.APIKey, "OPENAI_API_KEY")
	default:
		envIfEmpty(&cfg.Matching.Explanation.APIKey, "GEMINI_API_KEY")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "trial-matcher"
	}
	if cfg.App.HealthPort == 0 {
		cfg.App.HealthPort = 8080
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	applyMatchingDefaults(&cfg.Matching)
}

func applyMatchingDefaults(m *MatchingConfig) {
	if m.Weights.Sum() == 0 {
		m.Weights = WeightsConfig{
			Age:              0.15,
			Gender:           0.10,
			Biomarker:        0.30,
			Condition:        0.30,
			Contraindication: 0.15,
		}
	}
	if m.CriticalThreshold == 0 {
		m.CriticalThreshold = 0.5
	}
	if m.IneligiblePenalty == 0 {
		m.IneligiblePenalty = 0.3
	}
	if m.MaxDiversityBonus == 0 {
		m.MaxDiversityBonus = 15
	}
	if m.MinConfidence == 0 {
		m.MinConfidence = 40
	}
	if m.TopK == 0 {
		m.TopK = 10
	}
	if m.MaxConcurrency == 0 {
		m.MaxConcurrency = 8
	}
	if m.PrefilterOverfetch == 0 {
		m.PrefilterOverfetch = 2
	}
	if m.Prefilter.EmbeddingField == "" {
		m.Prefilter.EmbeddingField = "embedding"
	}

	e := &m.Explanation
	if e.Provider == "" {
		e.Provider = "gemini"
	}
	if e.Temperature == 0 {
		e.Temperature = 0.3
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 300
	}
	if e.TimeoutMs == 0 {
		e.TimeoutMs = 30000
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	if e.BackoffMinMs == 0 {
		e.BackoffMinMs = 2000
	}
	if e.BackoffMaxMs == 0 {
		e.BackoffMaxMs = 10000
	}
	if e.CacheTTLSeconds == 0 {
		e.CacheTTLSeconds = 3600
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Matching.Prefilter.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when the prefilter is enabled")
	}

	return ValidateMatching(cfg.Matching, cfg.Notifications)
}

// ValidateMatching checks the matching and notification sections.
func ValidateMatching(m MatchingConfig, n NotificationConfig) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("notifications: %w", err)
	}
	if sum := m.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("matching.weights must sum to 1, got %.6f", sum)
	}
	if m.Explanation.BackoffMaxMs < m.Explanation.BackoffMinMs {
		return fmt.Errorf("matching.explanation.backoff_max_ms must not be below backoff_min_ms")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
