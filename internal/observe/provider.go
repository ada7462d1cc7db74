package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// DefaultServiceName is reported when [ProviderConfig.ServiceName] is empty.
const DefaultServiceName = "bridge"

// ProviderConfig describes the telemetry identity and export of one bridge
// process.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Instance is reported as service.instance.id, typically the listen
	// address.
	Instance string

	// SampleRatio is the fraction of root traces recorded. Spans whose parent
	// is sampled are always recorded. Values outside (0, 1) record every
	// trace.
	SampleRatio float64

	// TraceExporter receives finished spans. When nil, spans are sampled and
	// correlated in logs but not exported.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the collectors of the metrics exporter. When nil,
	// [prometheus.DefaultRegisterer] is used, which is what promhttp.Handler
	// serves.
	Registerer prometheus.Registerer
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// Shutdown flushes pending spans, then stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.TracerProvider.Shutdown(ctx),
		t.MeterProvider.Shutdown(ctx),
	)
}

// httpBuckets spans quick probe requests up to slow report downloads. The
// /ws route records connection lifetimes and lands in the last bucket.
var httpBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5,
}

// Views returns the metric views applied to the exported pipeline. HTTP
// latency gets its own buckets, and provider counters keep only their
// documented attributes so backend errors cannot grow label cardinality.
func Views() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "bridge.http.request.duration"},
			sdkmetric.Stream{
				Aggregation:     sdkmetric.AggregationExplicitBucketHistogram{Boundaries: httpBuckets},
				AttributeFilter: attribute.NewAllowKeysFilter("method", "path"),
			},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "bridge.provider.*"},
			sdkmetric.Stream{
				AttributeFilter: attribute.NewAllowKeysFilter("provider", "kind", "status"),
			},
		),
	}
}

// InitProvider installs global meter and tracer providers for cfg. Metrics
// are exported through Prometheus with [Views] applied; traces use a
// parent-based ratio sampler.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
		sdkmetric.WithView(Views()...),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return &Telemetry{MeterProvider: mp, TracerProvider: tp}, nil
}

func newResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.Instance))
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(attrs...),
	)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
