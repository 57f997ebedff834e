// Package observe provides application-wide observability primitives for
// Lenslate: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Lenslate metrics.
const meterName = "github.com/lenslate/lenslate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// EventDuration tracks per-event processing latency in the session
	// worker. Recorded without attributes.
	EventDuration metric.Float64Histogram

	// TranslationEvents counts upstream events by kind and outcome.
	// Attributes: kind ("interim"|"final"), shown ("true"|"false").
	TranslationEvents metric.Int64Counter

	// GlassesWrites counts frames pushed to the glasses sink.
	// Attributes: reason ("interim"|"final"|"clear"). Unsupported-combination
	// warning captions go to the sink directly and are not counted here.
	GlassesWrites metric.Int64Counter

	// DroppedEvents counts malformed or unroutable upstream events.
	DroppedEvents metric.Int64Counter

	// SubscriberDrops counts viewers removed for backpressure or write
	// failure.
	SubscriberDrops metric.Int64Counter

	// InactivityClears counts inactivity-driven session clears.
	InactivityClears metric.Int64Counter

	// ActiveSessions tracks the number of live user sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks connected viewer streams.
	ActiveSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for caption-pipeline latencies.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EventDuration, err = m.Float64Histogram("lenslate.event.duration",
		metric.WithDescription("Per-event processing latency in the session worker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationEvents, err = m.Int64Counter("lenslate.translation.events",
		metric.WithDescription("Upstream translation events by kind and glasses visibility."),
	); err != nil {
		return nil, err
	}
	if met.GlassesWrites, err = m.Int64Counter("lenslate.glasses.writes",
		metric.WithDescription("Frames pushed to the glasses sink by reason."),
	); err != nil {
		return nil, err
	}
	if met.DroppedEvents, err = m.Int64Counter("lenslate.events.dropped",
		metric.WithDescription("Malformed or unroutable upstream events."),
	); err != nil {
		return nil, err
	}
	if met.SubscriberDrops, err = m.Int64Counter("lenslate.subscriber.drops",
		metric.WithDescription("Viewers removed for backpressure or write failure."),
	); err != nil {
		return nil, err
	}
	if met.InactivityClears, err = m.Int64Counter("lenslate.inactivity.clears",
		metric.WithDescription("Inactivity-driven session clears."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("lenslate.active_sessions",
		metric.WithDescription("Number of live user sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("lenslate.active_subscribers",
		metric.WithDescription("Number of connected viewer streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lenslate.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordTranslationEvent records one upstream event.
func (m *Metrics) RecordTranslationEvent(ctx context.Context, isFinal, shown bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	m.TranslationEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("shown", shown),
		),
	)
}

// RecordGlassesWrite records one frame pushed to the glasses sink.
func (m *Metrics) RecordGlassesWrite(ctx context.Context, reason string) {
	m.GlassesWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
