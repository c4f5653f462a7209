package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/ahrav/go-recall/internal/dataset"
	"github.com/ahrav/go-recall/internal/domain"
	"github.com/ahrav/go-recall/internal/workflow"
)

type submitFlags struct {
	input     string
	offset    int
	batchSize int
	runID     string
	wait      bool
}

func newSubmitCommand(g *globalFlags) *cobra.Command {
	f := &submitFlags{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Start an evaluation workflow on Temporal workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("offset") {
				cfg.Run.Offset = f.offset
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Run.BatchSize = f.batchSize
			}
			if err := cfg.Validate(); err != nil {
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
			runID := newRunID(f.runID)
			in := workflow.Input{
				Request: domain.RunRequest{
					RunID:     runID,
					Items:     dataset.Slice(items, cfg.Run.Offset),
					Offset:    cfg.Run.Offset,
					BatchSize: cfg.Run.BatchSize,
				},
				ActivityTimeout: cfg.Temporal.ActivityTimeout,
			}

			c, err := dialTemporal(cfg.Temporal, rt)
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        "recall-" + runID,
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflow.EvaluationWorkflow, in)
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s run %s\n", run.GetID(), run.GetRunID())
			if !f.wait {
				return nil
			}

			var summary domain.RunSummary
			if err := run.Get(ctx, &summary); err != nil {
				return fmt.Errorf("workflow %s: %w", run.GetID(), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "dataset JSON file (required)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "index of the first item to process")
	cmd.Flags().IntVarP(&f.batchSize, "batch-size", "b", 0, "items processed concurrently per batch")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default random)")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "block until the workflow finishes and print its summary")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
