package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the monitor's Prometheus instruments.
//
// All metrics are prefixed with "patternd_monitor_":
//   - passes_total{kind,result} - passes run
//   - pass_duration_seconds{kind} - pass duration
//   - coalesced_requests_total - requests folded into a pending one
//   - patterns - patterns in the store after the last pass
//   - patterns_created_total - patterns created by passes
//   - consecutive_failures - current failure streak
//   - state - current State as a number
type Metrics struct {
	Passes              *prometheus.CounterVec
	PassDuration        *prometheus.HistogramVec
	Coalesced           prometheus.Counter
	Patterns            prometheus.Gauge
	PatternsCreated     prometheus.Counter
	ConsecutiveFailures prometheus.Gauge
	State               prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers the monitor metrics on reg. A nil reg gets a fresh
// registry, so several monitors can coexist in one process (and in tests).
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Passes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternd_monitor_passes_total",
				Help: "Total number of analysis passes run by the monitor",
			},
			[]string{"kind", "result"},
		),
		PassDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternd_monitor_pass_duration_seconds",
				Help:    "Duration of analysis passes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"kind"},
		),
		Coalesced: f.NewCounter(prometheus.CounterOpts{
			Name: "patternd_monitor_coalesced_requests_total",
			Help: "Pass requests folded into an already pending request",
		}),
		Patterns: f.NewGauge(prometheus.GaugeOpts{
			Name: "patternd_monitor_patterns",
			Help: "Patterns in the store after the last pass",
		}),
		PatternsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "patternd_monitor_patterns_created_total",
			Help: "Patterns created by monitor passes",
		}),
		ConsecutiveFailures: f.NewGauge(prometheus.GaugeOpts{
			Name: "patternd_monitor_consecutive_failures",
			Help: "Current run of consecutive failed passes",
		}),
		State: f.NewGauge(prometheus.GaugeOpts{
			Name: "patternd_monitor_state",
			Help: "Monitor state (0 idle, 1 watching, 2 increment, 3 full, 4 stopped)",
		}),
		registry: reg,
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
