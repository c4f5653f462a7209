package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-recall/internal/batch"
	"github.com/ahrav/go-recall/internal/dataset"
	"github.com/ahrav/go-recall/internal/domain"
	"github.com/ahrav/go-recall/internal/progress"
	"github.com/ahrav/go-recall/internal/worker"
	"github.com/ahrav/go-recall/pkg/events"
)

type runFlags struct {
	input         string
	offset        int
	batchSize     int
	checkpointDir string
	progress      bool
	runID         string
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a dataset in-process, one checkpoint per batch",
		Example: `  recall run --input questions.json --batch-size 8
  recall run --input questions.json --offset $(recall next-offset)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEvaluation(ctx, cmd, g, f)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "dataset JSON file (required)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "index of the first item to process")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", 0, "items processed concurrently per batch (default from config, 1)")
	cmd.Flags().StringVar(&f.checkpointDir, "checkpoint-dir", "", "directory for checkpoint artifacts")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "render progress and a summary table")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default random)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runEvaluation(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("offset") {
		cfg.Run.Offset = f.offset
	}
	if flags.Changed("batch-size") {
		cfg.Run.BatchSize = f.batchSize
	}
	if flags.Changed("checkpoint-dir") {
		cfg.Run.CheckpointDir = f.checkpointDir
	}
	if flags.Changed("progress") {
		cfg.Run.Progress = f.progress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return err
	}

	rt, err := startRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	items, err := dataset.LoadFile(f.input)
	if err != nil {
		return err
	}
	remaining := dataset.Slice(items, cfg.Run.Offset)

	components, err := worker.Build(ctx, cfg, rt.logger, rt.metrics)
	if err != nil {
		return err
	}
	defer components.Close()

	var reporter events.EventSink = progress.Null{}
	if cfg.Run.Progress {
		reporter = progress.NewConsole(progress.WithOutput(cmd.ErrOrStderr()))
	}

	opts := []batch.Option{
		batch.WithLogger(rt.logger),
		batch.WithEventSink(events.MultiSink{components.EventSink, reporter}),
	}
	if rt.metrics != nil {
		opts = append(opts, batch.WithMetrics(rt.metrics))
	}
	scheduler := batch.New(components.Processor, components.Writer, batch.Config{BatchSize: cfg.Run.BatchSize}, opts...)

	summary, err := scheduler.Run(ctx, domain.RunRequest{
		RunID:     newRunID(f.runID),
		Items:     remaining,
		Offset:    cfg.Run.Offset,
		BatchSize: cfg.Run.BatchSize,
	})
	if summary != nil {
		if components.Cache != nil {
			st := components.Cache.Stats()
			rt.logger.Info("cache", "hits", st.Hits, "misses", st.Misses)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "next offset: %d\n", summary.NextOffset)
	}
	return err
}
