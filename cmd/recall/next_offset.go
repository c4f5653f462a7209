package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-recall/internal/checkpoint"
)

func newNextOffsetCommand(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "next-offset",
		Short: "Print the offset to resume from, based on existing checkpoints",
		Long: `next-offset scans every checkpoint artifact and prints the first idx not
covered by any of them. Empty hypotheses count as covered; rerun those items
separately if needed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("checkpoint-dir") {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Run.CheckpointDir
			}
			results, err := checkpoint.Scan(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), checkpoint.NextOffset(results))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "checkpoint-dir", "", "directory holding checkpoint artifacts")
	return cmd
}
