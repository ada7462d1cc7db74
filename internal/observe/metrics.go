// Package observe provides application-wide observability primitives for
// Bridge: OpenTelemetry metrics, distributed tracing, structured logging, a
// bounded diagnostics journal, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Bridge metrics.
const meterName = "github.com/AichiroFunakoshi/bridge"

// Translation request outcomes used as the "status" attribute.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusSuperseded = "superseded"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranslationFirstToken tracks the time from submit to the first
	// streamed chunk.
	TranslationFirstToken metric.Float64Histogram

	// TranslationDuration tracks the time from submit to end of stream.
	TranslationDuration metric.Float64Histogram

	// DebounceDelay tracks the settle delay armed by the debouncer. Use with
	// attribute:
	//   attribute.String("language", ...)
	DebounceDelay metric.Float64Histogram

	// --- Counters ---

	// TranslationRequests counts translation requests. Use with attribute:
	//   attribute.String("status", ...)
	TranslationRequests metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Playbacks counts speech-output utterances issued.
	Playbacks metric.Int64Counter

	// CaptureRestarts counts scheduled recognition restarts. Use with attribute:
	//   attribute.String("reason", ...)
	CaptureRestarts metric.Int64Counter

	// PauseSamples counts accepted pause samples. Use with attribute:
	//   attribute.String("language", ...)
	PauseSamples metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// RecognitionErrors counts recognizer errors. Use with attribute:
	//   attribute.String("kind", ...)
	RecognitionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live translation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// WSConnections tracks connected websocket clients.
	WSConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming translation latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// delayBuckets covers the allowed debounce range of 100-800 ms.
var delayBuckets = []float64{
	0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.6, 0.8,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslationFirstToken, err = m.Float64Histogram("bridge.translation.first_token",
		metric.WithDescription("Time from translation submit to the first streamed chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("bridge.translation.duration",
		metric.WithDescription("Time from translation submit to end of stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DebounceDelay, err = m.Float64Histogram("bridge.debounce.delay",
		metric.WithDescription("Settle delay armed by the translation debouncer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(delayBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranslationRequests, err = m.Int64Counter("bridge.translation.requests",
		metric.WithDescription("Total translation requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("bridge.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("bridge.speech.playbacks",
		metric.WithDescription("Total speech-output utterances issued."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("bridge.capture.restarts",
		metric.WithDescription("Total scheduled recognition restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.PauseSamples, err = m.Int64Counter("bridge.debounce.samples",
		metric.WithDescription("Total accepted pause samples by language."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("bridge.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("bridge.recognition.errors",
		metric.WithDescription("Total recognizer errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("bridge.active_sessions",
		metric.WithDescription("Number of live translation sessions."),
	); err != nil {
		return nil, err
	}
	if met.WSConnections, err = m.Int64UpDownCounter("bridge.ws.connections",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("bridge.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTranslation records the outcome of one translation request.
func (m *Metrics) RecordTranslation(ctx context.Context, status string) {
	m.TranslationRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDebounceDelay records an armed debounce delay for lang.
func (m *Metrics) RecordDebounceDelay(ctx context.Context, lang string, d time.Duration) {
	m.DebounceDelay.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("language", lang)))
}

// RecordPauseSample records one accepted pause sample for lang.
func (m *Metrics) RecordPauseSample(ctx context.Context, lang string) {
	m.PauseSamples.Add(ctx, 1, metric.WithAttributes(attribute.String("language", lang)))
}

// RecordCaptureRestart records a scheduled recognition restart.
func (m *Metrics) RecordCaptureRestart(ctx context.Context, reason string) {
	m.CaptureRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRecognitionError records a recognizer error of the given kind.
func (m *Metrics) RecordRecognitionError(ctx context.Context, kind string) {
	m.RecognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
