package telemetry

import (
	"context"
	"slices"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry exports spans synchronously to memory and keeps metrics
// behind a manual reader, so tests can assert on them right after the
// code under test returns.
type TestTelemetry struct {
	*Telemetry

	Exporter *tracetest.InMemoryExporter
	reader   *sdkmetric.ManualReader
}

// NewTestTelemetry returns an exporting Telemetry backed by memory.
func NewTestTelemetry() *TestTelemetry {
	exp := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	tel := &Telemetry{
		config:         cfg,
		logger:         zap.NewNop(),
		tracerProvider: trace.NewTracerProvider(trace.WithSyncer(exp)),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	tel.setState(statusExporting)
	return &TestTelemetry{Telemetry: tel, Exporter: exp, reader: reader}
}

// span returns the first ended span called name.
func (t *TestTelemetry) span(name string) (tracetest.SpanStub, bool) {
	spans := t.Exporter.GetSpans()
	i := slices.IndexFunc(spans, func(s tracetest.SpanStub) bool { return s.Name == name })
	if i < 0 {
		return tracetest.SpanStub{}, false
	}
	return spans[i], true
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if _, ok := t.span(name); !ok {
		var names []string
		for _, s := range t.Exporter.GetSpans() {
			names = append(names, s.Name)
		}
		tb.Errorf("span %q not recorded; have %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless span name carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	s, ok := t.span(name)
	if !ok {
		tb.Fatalf("span %q not recorded", name)
	}
	for _, kv := range s.Attributes {
		if string(kv.Key) != key {
			continue
		}
		if got := kv.Value.AsInterface(); got != want {
			tb.Errorf("span %q: %s = %v (%T), want %v (%T)", name, key, got, got, want, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// CounterValue sums an int64 counter over all attribute sets. A counter
// that was never recorded reads as 0.
func (t *TestTelemetry) CounterValue(tb testing.TB, name string) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

