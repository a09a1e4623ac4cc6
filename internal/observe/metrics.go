// Package observe provides application-wide observability primitives for the
// review service: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [NewTelemetry]
// bridges them into a per-instance Prometheus registry that /metrics serves. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/TylorChan/Vocabulary-Builder-App"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ProviderDuration tracks remote call latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tutor tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// SyncDuration tracks end-of-session reconciliation latency.
	SyncDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts remote calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Ratings counts rating submissions by outcome (accepted, already_rated,
	// in_progress, unknown, error).
	Ratings metric.Int64Counter

	// SceneJobs counts background rating jobs by final status.
	SceneJobs metric.Int64Counter

	// SyncedUpdates counts pending updates acknowledged by the backend.
	SyncedUpdates metric.Int64Counter

	// Syncs counts reconciliation attempts by status.
	Syncs metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live review sessions.
	ActiveSessions metric.Int64UpDownCounter

	// RatingQueueDepth tracks scenes waiting for the rating worker.
	RatingQueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote scheduler, judge and persistence calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProviderDuration, err = m.Float64Histogram("vocabtutor.provider.duration",
		metric.WithDescription("Latency of remote provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("vocabtutor.tool_execution.duration",
		metric.WithDescription("Latency of tutor tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SyncDuration, err = m.Float64Histogram("vocabtutor.sync.duration",
		metric.WithDescription("Latency of end-of-session reconciliation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("vocabtutor.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("vocabtutor.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Ratings, err = m.Int64Counter("vocabtutor.ratings",
		metric.WithDescription("Total rating submissions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SceneJobs, err = m.Int64Counter("vocabtutor.scene_jobs",
		metric.WithDescription("Total scene rating jobs by final status."),
	); err != nil {
		return nil, err
	}
	if met.SyncedUpdates, err = m.Int64Counter("vocabtutor.synced_updates",
		metric.WithDescription("Total pending updates acknowledged by the backend."),
	); err != nil {
		return nil, err
	}
	if met.Syncs, err = m.Int64Counter("vocabtutor.syncs",
		metric.WithDescription("Total reconciliation attempts by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vocabtutor.active_sessions",
		metric.WithDescription("Number of live review sessions."),
	); err != nil {
		return nil, err
	}
	if met.RatingQueueDepth, err = m.Int64UpDownCounter("vocabtutor.rating_queue.depth",
		metric.WithDescription("Number of scenes waiting for the rating worker."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocabtutor.http.request.duration",
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

// Status maps an error to the "ok"/"error" status attribute value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordProviderCall records the request counter and latency of one remote
// call.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	)
	m.ProviderDuration.Record(ctx, d.Seconds(), attrs)
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", Status(err)),
		),
	)
}

// RecordToolCall records a tool call counter increment and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolExecutionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordRating records one rating submission outcome.
func (m *Metrics) RecordRating(ctx context.Context, outcome string) {
	m.Ratings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSceneJob records a finished scene rating job.
func (m *Metrics) RecordSceneJob(ctx context.Context, status string) {
	m.SceneJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSync records one reconciliation attempt.
func (m *Metrics) RecordSync(ctx context.Context, synced int, d time.Duration, err error) {
	status := Status(err)
	m.Syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.SyncDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if err == nil && synced > 0 {
		m.SyncedUpdates.Add(ctx, int64(synced))
	}
}
