// Package observe provides application-wide observability primitives for
// Voxauth: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxauth metrics.
const meterName = "github.com/MrWong99/voxauth"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DecodeDuration tracks audio decode latency (container parse, PCM
	// conversion, resampling).
	DecodeDuration metric.Float64Histogram

	// VADDuration tracks voice-activity detection latency.
	VADDuration metric.Float64Histogram

	// ASRDuration tracks speech recognition latency.
	ASRDuration metric.Float64Histogram

	// EmbeddingDuration tracks speaker-embedding extraction latency for a
	// whole clip (all digit slices).
	EmbeddingDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end clip processing latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// AuthAttempts counts authentication attempts. Use with attributes:
	//   attribute.String("method", "voice"|"pin"), attribute.String("outcome", ...)
	AuthAttempts metric.Int64Counter

	// Enrollments counts completed enrollments. Use with attribute:
	//   attribute.String("outcome", ...)
	Enrollments metric.Int64Counter

	// --- Error counters ---

	// PipelineErrors counts clip-processing failures. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("code", ...)
	PipelineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live WebSocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for audio-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("voxauth.decode.duration",
		metric.WithDescription("Latency of audio decoding and resampling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VADDuration, err = m.Float64Histogram("voxauth.vad.duration",
		metric.WithDescription("Latency of voice-activity detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRDuration, err = m.Float64Histogram("voxauth.asr.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("voxauth.embedding.duration",
		metric.WithDescription("Latency of speaker-embedding extraction per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("voxauth.pipeline.duration",
		metric.WithDescription("End-to-end clip processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AuthAttempts, err = m.Int64Counter("voxauth.auth.attempts",
		metric.WithDescription("Total authentication attempts by method and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Enrollments, err = m.Int64Counter("voxauth.enrollments",
		metric.WithDescription("Total enrollment sessions by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineErrors, err = m.Int64Counter("voxauth.pipeline.errors",
		metric.WithDescription("Total clip-processing failures by stage and code."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxauth.active_sessions",
		metric.WithDescription("Number of live WebSocket sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxauth.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAuthAttempt is a convenience method that records an authentication
// attempt counter increment with the standard attribute set.
func (m *Metrics) RecordAuthAttempt(ctx context.Context, method, outcome string) {
	m.AuthAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordEnrollment is a convenience method that records an enrollment
// counter increment.
func (m *Metrics) RecordEnrollment(ctx context.Context, outcome string) {
	m.Enrollments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordPipelineError is a convenience method that records a clip-processing
// failure counter increment.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage, code string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("code", code),
		),
	)
}
