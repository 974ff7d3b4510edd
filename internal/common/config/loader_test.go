package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const minimalConfig = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: trials
    user: ${TEST_DB_USER}
  redis:
    address: localhost:6379
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// Loading
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DB_USER", "matcher")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "matcher", cfg.Database.Postgres.User)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 8080, cfg.App.HealthPort)

	m := cfg.Matching
	assert.InDelta(t, 1.0, m.Weights.Sum(), 1e-9)
	assert.Equal(t, 0.30, m.Weights.Biomarker)
	assert.Equal(t, 0.5, m.CriticalThreshold)
	assert.Equal(t, 0.3, m.IneligiblePenalty)
	assert.Equal(t, 15.0, m.MaxDiversityBonus)
	assert.Equal(t, 40.0, m.MinConfidence)
	assert.Equal(t, 10, m.TopK)
	assert.Equal(t, 8, m.MaxConcurrency)
	assert.Equal(t, 2, m.PrefilterOverfetch)
	assert.Equal(t, "gemini", m.Explanation.Provider)
	assert.Equal(t, 3, m.Explanation.MaxAttempts)
	assert.Equal(t, 3600, m.Explanation.CacheTTLSeconds)
}

func TestLoadFromFile_ExplanationKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_DB_USER", "matcher")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
matching:
  explanation:
    provider: openai
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Matching.Explanation.APIKey)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFile_ShippedConfig(t *testing.T) {
	t.Setenv("ZEEBE_ADDRESS", "localhost:26500")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "matcher")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")

	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.True(t, IsWorkerEnabled(cfg, "match-trials"))
	assert.Equal(t, 120000, GetWorkerConfig(cfg, "match-trials").Timeout)
}

// ==========================
// Validation
// ==========================

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "weights must sum to one",
			body: minimalConfig + `
matching:
  weights: {age: 0.5, gender: 0.5, biomarker: 0.5, condition: 0, contraindication: 0}
`,
			wantErr: "must sum to 1",
		},
		{
			name: "unknown provider",
			body: minimalConfig + `
matching:
  explanation:
    provider: claude
`,
			wantErr: "matching",
		},
		{
			name: "notifications need a topic",
			body: minimalConfig + `
notifications:
  enabled: true
`,
			wantErr: "notifications",
		},
		{
			name: "prefilter needs elasticsearch",
			body: minimalConfig + `
matching:
  prefilter:
    enabled: true
    index: trials
`,
			wantErr: "elasticsearch",
		},
		{
			name:    "broker required",
			body:    "database: {postgres: {host: h, database: d, user: u}, redis: {address: r}}",
			wantErr: "broker_address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DB_USER", "matcher")
			t.Setenv("MATCH_NOTIFICATION_TOPIC_ARN", "")

			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Defaults(t *testing.T) {
	cfg := &Config{}

	wc := GetWorkerConfig(cfg, "score-candidate")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "score-candidate"))
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
