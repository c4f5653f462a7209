// Package main provides the recall CLI: a resumable batch evaluation
// harness that answers a question set through a context search service
// and a generation model, checkpointing every batch.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

// Set by the linker.
var version = "dev"

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, evalerrors.ErrInterrupted) {
			os.Exit(exitInterrupted)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "recall",
		Short: "Resumable batch evaluation over a context search service",
		Long: `recall answers every question of a dataset by retrieving context and
generating an answer, writing one checkpoint per batch so an interrupted run
can resume from the next offset.

Commands:
  run          process a dataset in-process
  next-offset  print the offset to resume from
  worker       serve the Temporal workflow and activities
  submit       start a run on Temporal workers`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "override logging.format (text|json)")

	root.AddCommand(
		newRunCommand(g),
		newNextOffsetCommand(g),
		newWorkerCommand(g),
		newSubmitCommand(g),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recall %s\n", version)
		},
	}
}
