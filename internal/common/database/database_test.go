package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trial-matcher/internal/common/config"
	"trial-matcher/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

type flakyPinger struct {
	failures int
	calls    int
}

func (f *flakyPinger) Ping(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

// ==========================
// WaitReady
// ==========================

func TestWaitReady(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{name: "ready first time", failures: 0, retries: 3, wantCalls: 1},
		{name: "ready after retries", failures: 2, retries: 3, wantCalls: 3},
		{name: "never ready", failures: 10, retries: 3, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &flakyPinger{failures: tt.failures}
			err := WaitReady(context.Background(), "test", p, tt.retries, time.Millisecond, logger.NewTestLogger(t))

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, p.calls)
		})
	}
}

func TestWaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitReady(ctx, "test", &flakyPinger{failures: 10}, 5, time.Hour, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

// ==========================
// Clients
// ==========================

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectClose()

	c := &PostgresClient{DB: db}
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgres_DoesNotConnect(t *testing.T) {
	c, err := NewPostgres(config.PostgresConfig{Host: "127.0.0.1", Port: 1, Database: "x", User: "u", SSLMode: "disable"})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestRedisClient_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestElasticsearchClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":{"number":"8.11.0"}}`))
	}))
	defer server.Close()

	c, err := NewElasticsearch(config.ElasticsearchConfig{URL: server.URL})
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))
}
