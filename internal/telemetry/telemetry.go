package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// status is the exporting state of a Telemetry.
type status int32

const (
	statusLocal     status = iota // disabled; instruments go to the global no-op providers
	statusExporting               // every provider is exporting
	statusDegraded                // at least one provider failed to start
	statusClosed
)

// Telemetry owns the tracer and meter providers for one command run.
// A provider that fails to start is left unset, so its instruments fall
// back to the global no-op provider and the command keeps working.
type Telemetry struct {
	config *Config
	logger *zap.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// New starts the providers described by cfg and installs them globally.
// A disabled config yields an instance that only hands out no-op
// instruments.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Telemetry{config: cfg, logger: logger}
	if !cfg.Enabled {
		return t, nil
	}
	t.setState(statusExporting)

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade("traces", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}
	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.degrade("metrics", err)
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes pending spans and metrics, bounded by
// Config.ShutdownAfter. Later calls return the first call's result.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.closeOnce.Do(func() {
		if d := t.config.ShutdownAfter; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		var errs []error
		if t.tracerProvider != nil {
			if err := t.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("traces: %w", err))
			}
		}
		if t.meterProvider != nil {
			if err := t.meterProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metrics: %w", err))
			}
		}
		t.closeErr = errors.Join(errs...)
		t.setState(statusClosed)
	})
	return t.closeErr
}

// HealthStatus reports whether telemetry is exporting.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
}

// Health reports the current status. A nil Telemetry is degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	switch t.status() {
	case statusDegraded:
		return HealthStatus{Healthy: true, Degraded: true}
	case statusClosed:
		return HealthStatus{}
	}
	return HealthStatus{Healthy: true}
}

// IsEnabled reports whether at least one provider is exporting.
func (t *Telemetry) IsEnabled() bool {
	if t == nil {
		return false
	}
	s := t.status()
	return s == statusExporting || s == statusDegraded
}

func (t *Telemetry) status() status { return status(t.state.Load()) }
func (t *Telemetry) setState(s status) { t.state.Store(int32(s)) }

func (t *Telemetry) degrade(signal string, err error) {
	t.setState(statusDegraded)
	t.logger.Warn("telemetry degraded, continuing without export",
		zap.String("signal", signal), zap.Error(err))
}
