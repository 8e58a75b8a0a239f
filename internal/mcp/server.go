// Package mcp exposes learned patterns to agents as MCP tools.
//
// The server speaks MCP over stdio using github.com/modelcontextprotocol/go-sdk
// and calls the engine directly. It is read-only: tools never mutate the
// pattern store.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/engine"
	"github.com/fyrsmithlabs/patternd/internal/matcher"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// Engine is the subset of the analysis engine the tools need.
type Engine interface {
	Apply(ctx context.Context, sit matcher.Situation) []matcher.Suggestion
	Insights(ctx context.Context) (*engine.Summary, error)
	Patterns(pred func(*patterns.Pattern) bool) []*patterns.Pattern
}

// Server is an MCP server backed by an Engine.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "patternd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Metrics records tool invocations. Nil uses the global meter.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "patternd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server for eng.
func NewServer(cfg *Config, eng Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("create mcp metrics: %w", err)
		}
		cfg.Metrics = m
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  eng,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run serves on the stdio transport until the client disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.serve(ctx, &mcp.StdioTransport{})
}

func (s *Server) serve(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
