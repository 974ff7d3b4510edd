package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservability_MetricsReachRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New("trial-matcher-test", WithRegisterer(reg))
	defer obs.Shutdown()

	ctx := context.Background()
	obs.RecordJobProcessed(ctx, "success")
	obs.RecordJobDuration(ctx, 120*time.Millisecond, "success")
	obs.RecordBatch(ctx, map[string]int{"evaluated": 3, "failed": 1, "skipped": 0})

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "jobs_processed")
	assert.Contains(t, joined, "match_batch_candidates")
}

func TestObservability_TracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	obs := New("trial-matcher-test", WithRegisterer(prometheus.NewRegistry()), WithTracing(&buf))

	_, span := obs.Tracer("test").Start(context.Background(), "match.batch")
	span.End()
	obs.Shutdown()

	assert.Contains(t, buf.String(), "match.batch")
}

func TestObservability_ZeroValueIsSafe(t *testing.T) {
	obs := &Observability{}

	obs.RecordJobProcessed(context.Background(), "failed")
	obs.RecordBatch(context.Background(), map[string]int{"evaluated": 1})
	_, span := obs.Tracer("noop").Start(context.Background(), "noop")
	span.End()
	obs.Shutdown()
}
