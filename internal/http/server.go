// Package http serves the monitor's operational endpoints: health,
// Prometheus metrics, and a JSON apply endpoint for callers that do not
// speak MCP.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/matcher"
)

const (
	defaultAddr  = "localhost:9464"
	maxApplyBody = "1M"
)

// Advisor answers apply requests.
type Advisor interface {
	Apply(ctx context.Context, sit matcher.Situation) []matcher.Suggestion
}

// StatusFunc reports the current monitor state for /health.
type StatusFunc func() string

// Server provides HTTP endpoints for patternd.
type Server struct {
	echo    *echo.Echo
	advisor Advisor
	status  StatusFunc
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Metrics, when set, should be registered on Gatherer.
	Metrics *HTTPMetrics
}

// NewServer wires the routes and middleware. The advisor and logger are
// required; a nil cfg listens on localhost:9464 and serves the default
// Prometheus registry.
func NewServer(advisor Advisor, status StatusFunc, logger *zap.Logger, cfg *Config) (*Server, error) {
	switch {
	case advisor == nil:
		return nil, errors.New("http: advisor is required")
	case logger == nil:
		return nil, errors.New("http: logger is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if status == nil {
		status = func() string { return "" }
	}

	s := &Server{echo: echo.New(), advisor: advisor, status: status, logger: logger, config: cfg}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover(), middleware.RequestID())
	if cfg.Metrics != nil {
		s.echo.Use(cfg.Metrics.MetricsMiddleware())
	}
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1", middleware.BodyLimit(maxApplyBody))
	v1.POST("/apply", s.handleApply)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
}

// ApplyResponse is the response body for POST /api/v1/apply.
type ApplyResponse struct {
	Suggestions []matcher.Suggestion `json:"suggestions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", State: s.status()})
}

func (s *Server) handleApply(c echo.Context) error {
	var sit matcher.Situation
	if err := c.Bind(&sit); err != nil {
		s.logger.Warn("invalid apply request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	suggestions := s.advisor.Apply(c.Request().Context(), sit)
	if suggestions == nil {
		suggestions = []matcher.Suggestion{}
	}
	return c.JSON(http.StatusOK, ApplyResponse{Suggestions: suggestions})
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
