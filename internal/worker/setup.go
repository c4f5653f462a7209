// Package worker assembles the run components from configuration and
// registers the Temporal workflow and activities. Both the in-process
// driver and the Temporal worker build their pipeline here.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ahrav/go-recall/internal/cache"
	"github.com/ahrav/go-recall/internal/checkpoint"
	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/contextsearch"
	"github.com/ahrav/go-recall/internal/generation"
	"github.com/ahrav/go-recall/internal/observability"
	"github.com/ahrav/go-recall/internal/processor"
	"github.com/ahrav/go-recall/internal/retry"
	"github.com/ahrav/go-recall/pkg/events"
)

// EventLogName is the run event log written next to the checkpoints.
const EventLogName = "events.jsonl"

// Components is the wired pipeline of a run.
type Components struct {
	Processor *processor.ItemProcessor
	Writer    *checkpoint.Writer
	Policy    *retry.Policy
	Cache     *cache.Cache // nil when caching is disabled
	EventSink events.EventSink

	closers []io.Closer
}

// Build wires the pipeline from cfg. Secrets must already be resolved.
// metrics may be nil. The caller owns the returned Components and must
// Close them.
func Build(ctx context.Context, cfg *configuration.Config, logger *slog.Logger, metrics *observability.Metrics) (_ *Components, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	policyOpts := []retry.Option{retry.WithLogger(logger)}
	procOpts := []processor.Option{processor.WithLogger(logger)}
	writerOpts := []checkpoint.Option{checkpoint.WithLogger(logger)}
	if metrics != nil {
		policyOpts = append(policyOpts, retry.WithMetrics(metrics))
		procOpts = append(procOpts, processor.WithMetrics(metrics))
		writerOpts = append(writerOpts, checkpoint.WithMetrics(metrics))
	}

	c.Policy, err = retry.New(cfg.Retry, policyOpts...)
	if err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	provider, err := generation.NewProvider(ctx, cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}
	answerer := generation.NewAnswerer(provider,
		generation.WithMaxSnippets(cfg.Generation.MaxSnippets),
		generation.WithTimeout(cfg.Generation.Timeout),
		generation.WithLogger(logger))

	var searcher processor.Searcher = contextsearch.New(cfg.ContextSearch, contextsearch.WithLogger(logger))
	var ans processor.Answerer = answerer

	if cfg.Cache.Enabled {
		store, err := cache.Dial(ctx, cfg.Cache)
		if err != nil {
			logger.Warn("cache unavailable, running without it",
				"component", "worker",
				"addr", cfg.Cache.RedisAddr,
				"error", err)
		} else {
			c.closers = append(c.closers, store)
			c.Cache = cache.New(store, cfg.Cache.KeyPrefix, cfg.Cache.TTL, logger)
			searcher = c.Cache.Searcher(searcher)
			ans = c.Cache.Answerer(ans, AnswererIdentity(cfg.Generation))
		}
	}

	c.Processor = processor.New(searcher, ans, c.Policy, procOpts...)

	c.Writer, err = checkpoint.NewWriter(cfg.Run.CheckpointDir, writerOpts...)
	if err != nil {
		return nil, fmt.Errorf("checkpoint writer: %w", err)
	}

	c.EventSink = events.NewNoOpEventSink()
	if cfg.Run.EventLog {
		sink, err := events.OpenNDJSONFile(filepath.Join(cfg.Run.CheckpointDir, EventLogName))
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		c.closers = append(c.closers, sink)
		c.EventSink = sink
	}

	return c, nil
}

// AnswererIdentity keys cached answers by everything that shapes them.
func AnswererIdentity(cfg configuration.GenerationConfig) string {
	return fmt.Sprintf("%s/%s/t=%g/max=%d/snip=%d",
		cfg.Provider, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.MaxSnippets)
}

// Close releases connections and files in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}
