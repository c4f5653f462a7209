package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/observability"
)

// loadConfig reads the config file and applies the global overrides.
func (g *globalFlags) loadConfig() (*configuration.Config, error) {
	cfg, err := configuration.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	return cfg, cfg.Validate()
}

// runtime holds the process-wide observability of a command.
type runtime struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	shutdown []func(context.Context) error
}

// startRuntime installs the logger, tracing and, when enabled, the metrics
// endpoint. The endpoint serves until ctx is done.
func startRuntime(ctx context.Context, cfg *configuration.Config) (*runtime, error) {
	logger, err := observability.NewLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	rt := &runtime{logger: logger}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, err
	}
	rt.shutdown = append(rt.shutdown, shutdownTracing)

	if cfg.Metrics.Enabled {
		rt.metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		srv, err := observability.NewMetricsServer(cfg.Metrics.Addr, prometheus.DefaultGatherer, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}
	return rt, nil
}

// close flushes tracing on a context that outlives the command's.
func (rt *runtime) close(ctx context.Context) {
	for _, fn := range rt.shutdown {
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			rt.logger.Warn("shutdown", "error", err)
		}
	}
}

func newRunID(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return uuid.NewString()
}
