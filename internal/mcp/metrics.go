package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// InstrumentationName is the OTEL scope for MCP tool metrics.
const InstrumentationName = "github.com/fyrsmithlabs/patternd/internal/mcp"

// errInvalidArgument marks tool calls rejected before touching the store.
var errInvalidArgument = errors.New("invalid argument")

// Metrics counts tool calls, their latency and their failures.
type Metrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewMetrics creates the tool instruments on meter. A nil meter uses the
// global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	calls, err1 := meter.Int64Counter("patternd.mcp.tool.calls",
		metric.WithDescription("MCP tool calls"),
		metric.WithUnit("{call}"))
	failures, err2 := meter.Int64Counter("patternd.mcp.tool.failures",
		metric.WithDescription("MCP tool calls that returned an error, by reason"),
		metric.WithUnit("{call}"))
	latency, err3 := meter.Float64Histogram("patternd.mcp.tool.duration",
		metric.WithDescription("MCP tool call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, failures: failures, latency: latency}, nil
}

// track starts timing a call to tool. The returned func records the call
// and its error, if any. A nil Metrics records nothing.
func (m *Metrics) track(ctx context.Context, tool string) func(error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		ctx := context.WithoutCancel(ctx)
		set := metric.WithAttributes(attribute.String("tool", tool))
		m.calls.Add(ctx, 1, set)
		m.latency.Record(ctx, time.Since(start).Seconds(), set)
		if err != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", failureReason(err)),
			))
		}
	}
}

// failureReason buckets a tool error for the failures counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errInvalidArgument), errors.Is(err, patterns.ErrInvalidPattern):
		return "invalid_argument"
	case errors.Is(err, patterns.ErrStoreCorrupted):
		return "store_corrupted"
	case errors.Is(err, patterns.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "internal"
}
