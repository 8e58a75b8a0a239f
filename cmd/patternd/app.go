package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/engine"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/secrets"
	"github.com/fyrsmithlabs/patternd/internal/telemetry"
)

// app holds what every command needs. The secret detector is shared by
// log redaction and the engine.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	secrets   *secrets.Detector
}

// newApp loads configuration, applies flag overrides and starts logging
// and telemetry. Callers must call close.
func newApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	cfg, err := config.LoadWithFile(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	det, err := secrets.FromSettings(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if det != nil {
		logCfg.Redaction.Values = det
	}
	otelLogs := global.GetLoggerProvider()
	if cfg.Telemetry.Enabled {
		logCfg.Output.OTEL = true
	} else {
		otelLogs = nil
	}
	logger, err := logging.NewLogger(logCfg, otelLogs)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	tel, err := telemetry.New(cmd.Context(), telemetry.FromSettings(cfg.Telemetry, version), logger.Underlying())
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, telemetry: tel, secrets: det}, nil
}

func applyFlags(cmd *cobra.Command, flags *globalFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("solutions") {
		cfg.Sources.SolutionsPath = flags.solutions
	}
	if changed("metrics") {
		cfg.Sources.MetricsPath = flags.metrics
	}
	if changed("store") {
		cfg.Store.Path = flags.store
	}
	if changed("report-dir") {
		cfg.Report.Dir = flags.reportDir
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
}

// engine builds the analysis engine. A corrupted store fails here.
func (a *app) engine(opts ...engine.Option) (*engine.Engine, error) {
	opts = append([]engine.Option{engine.WithTelemetry(a.telemetry)}, opts...)
	eng, err := engine.BuildWithDetector(a.cfg, a.logger, a.secrets, opts...)
	if err != nil {
		a.logger.Error(context.Background(), "failed to open pattern store",
			zap.String("path", a.cfg.Store.Path),
			zap.Error(err))
		return nil, err
	}
	return eng, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
