package observability

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	serviceName     string
	meterProvider   *metric.MeterProvider
	tracerProvider  *sdktrace.TracerProvider
	meter           otelmetric.Meter
	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
	batchCandidates otelmetric.Int64Counter
}

type options struct {
	registerer  promclient.Registerer
	traceWriter io.Writer
	tracing     bool
}

type Option func(*options)

// WithRegisterer sends otel metrics to reg instead of the default registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTracing enables span export as JSON lines to w (stdout when nil).
func WithTracing(w io.Writer) Option {
	return func(o *options) {
		o.tracing = true
		o.traceWriter = w
	}
}

func New(serviceName string, opts ...Option) *Observability {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Observability{serviceName: serviceName}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	if cfg.tracing {
		w := cfg.traceWriter
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			log.Printf("Failed to create trace exporter: %v", err)
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(o.tracerProvider)
		}
	}

	var promOpts []prometheus.Option
	if cfg.registerer != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(cfg.registerer))
	}
	exporter, err := prometheus.New(promOpts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(o.meterProvider)

	o.meter = o.meterProvider.Meter(serviceName)

	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	o.batchCandidates, _ = o.meter.Int64Counter(
		"match.batch.candidates",
		otelmetric.WithDescription("Candidates seen by batch runs, by outcome"),
	)

	return o
}

// Tracer returns a tracer from the configured provider, or the global one
// (a no-op unless something else installed a provider).
func (o *Observability) Tracer(name string) trace.Tracer {
	if o.tracerProvider != nil {
		return o.tracerProvider.Tracer(name)
	}
	return otel.Tracer(name)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

// RecordBatch counts candidates by outcome: evaluated, failed or skipped.
func (o *Observability) RecordBatch(ctx context.Context, counts map[string]int) {
	if o.batchCandidates == nil {
		return
	}
	for outcome, n := range counts {
		if n <= 0 {
			continue
		}
		o.batchCandidates.Add(ctx, int64(n), otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Failed to shut down tracer provider: %v", err)
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			log.Printf("Failed to shut down meter provider: %v", err)
		}
	}
}
