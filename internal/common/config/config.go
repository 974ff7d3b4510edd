// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Matching      MatchingConfig          `mapstructure:"matching"`
	Registry      RegistryConfig          `mapstructure:"registry"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HealthPort  int    `mapstructure:"health_port"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Matching Configuration ---

// WeightsConfig mirrors the rule weights of the confidence policy.
type WeightsConfig struct {
	Age              float64 `mapstructure:"age" validate:"gte=0,lte=1"`
	Gender           float64 `mapstructure:"gender" validate:"gte=0,lte=1"`
	Biomarker        float64 `mapstructure:"biomarker" validate:"gte=0,lte=1"`
	Condition        float64 `mapstructure:"condition" validate:"gte=0,lte=1"`
	Contraindication float64 `mapstructure:"contraindication" validate:"gte=0,lte=1"`
}

// Sum is checked against 1 by validateConfig.
func (w WeightsConfig) Sum() float64 {
	return w.Age + w.Gender + w.Biomarker + w.Condition + w.Contraindication
}

type MatchingConfig struct {
	Weights            WeightsConfig     `mapstructure:"weights"`
	CriticalThreshold  float64           `mapstructure:"critical_threshold" validate:"gt=0,lte=1"`
	IneligiblePenalty  float64           `mapstructure:"ineligible_penalty" validate:"gte=0,lte=1"`
	MaxDiversityBonus  float64           `mapstructure:"max_diversity_bonus" validate:"gte=0,lte=100"`
	MinConfidence      float64           `mapstructure:"min_confidence" validate:"gte=0,lte=100"`
	TopK               int               `mapstructure:"top_k" validate:"gte=0"`
	MaxConcurrency     int               `mapstructure:"max_concurrency" validate:"gte=1"`
	PrefilterOverfetch int               `mapstructure:"prefilter_overfetch" validate:"gte=1"`
	Prefilter          PrefilterConfig   `mapstructure:"prefilter"`
	Explanation        ExplanationConfig `mapstructure:"explanation"`
}

// PrefilterConfig points at the offering embeddings index.
type PrefilterConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Index          string `mapstructure:"index" validate:"required_if=Enabled true"`
	EmbeddingField string `mapstructure:"embedding_field"`
}

type ExplanationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Provider        string  `mapstructure:"provider" validate:"omitempty,oneof=gemini openai"`
	Model           string  `mapstructure:"model"`
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Temperature     float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens       int     `mapstructure:"max_tokens" validate:"gte=0"`
	TimeoutMs       int     `mapstructure:"timeout_ms" validate:"gte=0"`
	MaxAttempts     int     `mapstructure:"max_attempts" validate:"gte=0"`
	BackoffMinMs    int     `mapstructure:"backoff_min_ms" validate:"gte=0"`
	BackoffMaxMs    int     `mapstructure:"backoff_max_ms" validate:"gte=0"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
}

// RegistryConfig locates the activity registry with the job input schemas.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds settings for high-confidence match notifications.
type NotificationConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	TopicARN string `mapstructure:"topic_arn" validate:"required_if=Enabled true"`
	Region   string `mapstructure:"region"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
