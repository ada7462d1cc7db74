package observe

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestViews(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithView(Views()...))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.HTTPRequestDuration.Record(context.Background(), 0.02, metric.WithAttributes(
		Attr("method", "GET"), Attr("path", "/readyz"), Attr("client_id", "c-1")))
	m.ProviderErrors.Add(context.Background(), 1, metric.WithAttributes(
		Attr("provider", "openai/gpt"), Attr("kind", "translate"), Attr("message", "boom")))

	rm := collect(t, reader)

	hm := findMetric(rm, "bridge.http.request.duration")
	if hm == nil {
		t.Fatal("http duration not exported")
	}
	hist := hm.Data.(metricdata.Histogram[float64])
	dp := hist.DataPoints[0]
	if !slices.Equal(dp.Bounds, httpBuckets) {
		t.Errorf("bounds = %v, want %v", dp.Bounds, httpBuckets)
	}
	if _, ok := dp.Attributes.Value("client_id"); ok {
		t.Error("client_id survived the http view")
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "/readyz" {
		t.Errorf("path = %q", v.AsString())
	}

	pm := findMetric(rm, "bridge.provider.errors")
	if pm == nil {
		t.Fatal("provider errors not exported")
	}
	sum := pm.Data.(metricdata.Sum[int64])
	attrs := sum.DataPoints[0].Attributes
	if _, ok := attrs.Value("message"); ok {
		t.Error("free-form message kept as a label")
	}
	if v, _ := attrs.Value("provider"); v.AsString() != "openai/gpt" {
		t.Errorf("provider = %q", v.AsString())
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{-3, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.Contains(got, tt.want) || !strings.HasPrefix(got, "ParentBased") {
			t.Errorf("sampler(%v) = %q, want parent-based %s", tt.ratio, got, tt.want)
		}
	}
}

func TestNewResource(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		cfg      ProviderConfig
		service  string
		instance string
	}{
		{"defaults", ProviderConfig{}, DefaultServiceName, ""},
		{"configured", ProviderConfig{ServiceName: "bridge-eu", ServiceVersion: "v1.2.0", Instance: ":8080"}, "bridge-eu", ":8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newResource(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("newResource: %v", err)
			}
			set := res.Set()
			if v, _ := set.Value(semconv.ServiceNameKey); v.AsString() != tt.service {
				t.Errorf("service.name = %q, want %q", v.AsString(), tt.service)
			}
			v, ok := set.Value(semconv.ServiceInstanceIDKey)
			if tt.instance == "" && ok {
				t.Errorf("service.instance.id = %q, want unset", v.AsString())
			}
			if tt.instance != "" && v.AsString() != tt.instance {
				t.Errorf("service.instance.id = %q, want %q", v.AsString(), tt.instance)
			}
		})
	}
}

func TestInitProvider(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	exp := tracetest.NewInMemoryExporter()
	reg := prometheus.NewRegistry()
	tel, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:   "bridge-test",
		Instance:      "127.0.0.1:0",
		TraceExporter: exp,
		Registerer:    reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordTranslation(context.Background(), StatusOK)
	_, span := StartSpan(context.Background(), "session.start")
	span.End()

	if err := tel.TracerProvider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if v, _ := spans[0].Resource.Set().Value(semconv.ServiceNameKey); v.AsString() != "bridge-test" {
		t.Errorf("span service.name = %q", v.AsString())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	if !slices.ContainsFunc(names, func(n string) bool { return strings.HasPrefix(n, "bridge_translation_requests") }) {
		t.Errorf("registry families = %v, want bridge_translation_requests", names)
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
