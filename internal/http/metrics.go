package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics instruments the server on the same Prometheus registry that
// /metrics serves, so request traffic shows up next to the monitor's pass
// metrics:
//   - patternd_http_requests_total{method,route,status}
//   - patternd_http_request_duration_seconds{method,route}
//   - patternd_http_in_flight_requests
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the HTTP instruments on reg. A nil reg uses the
// default registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &HTTPMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "patternd_http_requests_total",
			Help: "HTTP requests served, by method, route and status code",
		}, []string{"method", "route", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patternd_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "patternd_http_in_flight_requests",
			Help: "HTTP requests currently being served",
		}),
	}
}

// MetricsMiddleware records every request against its route template.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			method := c.Request().Method
			route := routeLabel(c.Path())
			m.Requests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			m.Duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// routeLabel folds unmatched requests, which have no route, into one
// series.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
