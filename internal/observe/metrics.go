// Package observe provides the observability primitives shared by every
// cockpit component: OpenTelemetry metrics, tracing helpers, trace-aware
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]; [MetricsHandler] serves the scrape endpoint.
// [DefaultMetrics] is a package-level instance for convenience; tests should
// use [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all cockpit metrics.
const meterName = "github.com/MrWong99/cockpit"

// Outcome labels for [Metrics.RecordChunk].
const (
	OutcomeDiscarded  = "discarded"
	OutcomeNoMatch    = "no_match"
	OutcomeAutoAnswer = "auto_answer"
	OutcomeCorrection = "correction"
)

// Metrics holds all OpenTelemetry instruments for the application. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// FlushDuration tracks how long one ingestion pipeline run takes.
	FlushDuration metric.Float64Histogram

	// LLMDuration tracks extraction model latency. Attributes: status.
	LLMDuration metric.Float64Histogram

	// ChunksProcessed counts flushed chunks by outcome.
	ChunksProcessed metric.Int64Counter

	// Extractions counts structured facts by field.
	Extractions metric.Int64Counter

	// ExtractionFallbacks counts adapter runs that used the lexical fallback.
	// Attributes: reason (disabled, rate_limited, error, malformed).
	ExtractionFallbacks metric.Int64Counter

	// StoreErrors counts failed record-store operations by op.
	StoreErrors metric.Int64Counter

	// RecognizerRestarts counts recognizer restarts by reason.
	RecognizerRestarts metric.Int64Counter

	// ActiveSessions tracks listening sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route (mux pattern), status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Model calls dominate the
// upper end.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FlushDuration, err = m.Float64Histogram("cockpit.flush.duration",
		metric.WithDescription("Duration of one transcript ingestion pipeline run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("cockpit.llm.duration",
		metric.WithDescription("Latency of extraction model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunksProcessed, err = m.Int64Counter("cockpit.chunks.processed",
		metric.WithDescription("Flushed transcript chunks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("cockpit.extractions",
		metric.WithDescription("Structured facts extracted by field."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionFallbacks, err = m.Int64Counter("cockpit.extraction.fallbacks",
		metric.WithDescription("Extraction adapter runs served by the lexical fallback, by reason."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("cockpit.store.errors",
		metric.WithDescription("Failed record store operations by operation."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter("cockpit.recognizer.restarts",
		metric.WithDescription("Recognizer restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cockpit.active_sessions",
		metric.WithDescription("Number of listening sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cockpit.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFlush records one pipeline run.
func (m *Metrics) RecordFlush(ctx context.Context, d time.Duration) {
	m.FlushDuration.Record(ctx, d.Seconds())
}

// RecordLLMCall records a model call's latency and status ("ok" or "error").
func (m *Metrics) RecordLLMCall(ctx context.Context, d time.Duration, status string) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
}

// RecordChunk counts a flushed chunk with one of the Outcome* labels.
func (m *Metrics) RecordChunk(ctx context.Context, outcome string) {
	m.ChunksProcessed.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordExtraction counts one extracted fact.
func (m *Metrics) RecordExtraction(ctx context.Context, field string) {
	m.Extractions.Add(ctx, 1, metric.WithAttributes(Attr("field", field)))
}

// RecordFallback counts one fallback extraction.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	m.ExtractionFallbacks.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordStoreError counts one failed store operation.
func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	m.StoreErrors.Add(ctx, 1, metric.WithAttributes(Attr("op", op)))
}

// RecordRestart counts one recognizer restart.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.RecognizerRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}
