package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/engine"
	httpserver "github.com/fyrsmithlabs/patternd/internal/http"
	"github.com/fyrsmithlabs/patternd/internal/monitor"
	"github.com/fyrsmithlabs/patternd/internal/notify"
)

// shutdownGrace is added to the pass bound when waiting for the monitor
// to stop.
const shutdownGrace = 10 * time.Second

func newMonitorCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Keep learning as new evidence arrives",
		Long: `Run the continuous monitor until SIGINT or SIGTERM. Appends to the
solutions log trigger incremental passes; a full pass runs at every
monitor interval.

Examples:
  patternd monitor
  patternd monitor --metrics-addr localhost:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.Monitor.MetricsAddr = metricsAddr
			}
			return runMonitor(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /health and /metrics on this address")
	return cmd
}

func runMonitor(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []engine.Option
	if a.cfg.Notify.NATSURL != "" {
		pub, err := notify.Connect(a.cfg.Notify, a.logger.Underlying())
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				a.logger.Warn(ctx, "nats close failed", zap.Error(err))
			}
		}()
		opts = append(opts, engine.WithPublisher(pub))
	}

	eng, err := a.engine(opts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mon, err := monitor.New(
		monitor.ConfigFromSettings(a.cfg.Monitor, a.cfg.Sources),
		engineRunner(eng),
		monitor.WithLogger(a.logger),
		monitor.WithMetrics(monitor.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	var srv *httpserver.Server
	if addr := a.cfg.Monitor.MetricsAddr; addr != "" {
		srv, err = httpserver.NewServer(eng, func() string { return mon.State().String() }, a.logger.Underlying(), &httpserver.Config{
			Addr:     addr,
			Gatherer: reg,
			Metrics:  httpserver.NewHTTPMetrics(reg),
		})
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				a.logger.Error(ctx, "metrics server failed", zap.Error(err))
			}
		}()
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info(context.Background(), "shutdown requested, waiting for in-flight pass")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Monitor.MaxPassDuration.Duration()+shutdownGrace)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn(shutdownCtx, "metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := mon.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("monitor did not stop cleanly: %w", err)
	}
	return nil
}

// engineRunner adapts the engine to the monitor's Runner.
func engineRunner(eng *engine.Engine) monitor.Runner {
	return monitor.RunnerFunc(func(ctx context.Context, kind monitor.Kind) (monitor.Outcome, error) {
		ek := engine.KindIncrement
		if kind == monitor.KindFull {
			ek = engine.KindFull
		}
		res, err := eng.Run(ctx, ek)
		if err != nil {
			return monitor.Outcome{}, err
		}
		return monitor.Outcome{Patterns: res.Patterns, Created: res.Created}, nil
	})
}
