package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the OTEL scope for engine spans and metrics.
const InstrumentationName = "github.com/fyrsmithlabs/patternd/internal/engine"

// Metrics records pass outcomes as OpenTelemetry instruments.
type Metrics struct {
	recordsIngested    metric.Int64Counter
	recordsMalformed   metric.Int64Counter
	patternsCreated    metric.Int64Counter
	patternsReinforced metric.Int64Counter
	passes             metric.Int64Counter

	passDuration metric.Float64Histogram
}

// NewMetrics creates the engine instruments on meter. A nil meter uses the
// global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.recordsIngested, err = meter.Int64Counter(
		"patternd.records.ingested",
		metric.WithDescription("Evidence records read by analysis passes"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.recordsMalformed, err = meter.Int64Counter(
		"patternd.records.malformed",
		metric.WithDescription("Evidence entries dropped as malformed"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.patternsCreated, err = meter.Int64Counter(
		"patternd.patterns.created",
		metric.WithDescription("Patterns created"),
		metric.WithUnit("{pattern}"),
	)
	if err != nil {
		return nil, err
	}

	m.patternsReinforced, err = meter.Int64Counter(
		"patternd.patterns.reinforced",
		metric.WithDescription("Patterns reinforced with new evidence"),
		metric.WithUnit("{pattern}"),
	)
	if err != nil {
		return nil, err
	}

	m.passes, err = meter.Int64Counter(
		"patternd.passes",
		metric.WithDescription("Analysis passes by kind and result"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	m.passDuration, err = meter.Float64Histogram(
		"patternd.pass.duration",
		metric.WithDescription("Analysis pass duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPass records one finished pass. res may be nil when the pass
// failed before producing a result.
func (m *Metrics) RecordPass(ctx context.Context, kind Kind, res *PassResult, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	kindAttr := attribute.String("kind", string(kind))
	m.passes.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("result", result)))
	m.passDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(kindAttr))

	if res == nil {
		return
	}
	m.recordsIngested.Add(ctx, int64(res.Records), metric.WithAttributes(kindAttr))
	if res.Malformed > 0 {
		m.recordsMalformed.Add(ctx, int64(res.Malformed), metric.WithAttributes(kindAttr))
	}
	if res.Created > 0 {
		m.patternsCreated.Add(ctx, int64(res.Created))
	}
	if res.Reinforced > 0 {
		m.patternsReinforced.Add(ctx, int64(res.Reinforced))
	}
}
