package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/worker"
)

func newWorkerCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve the evaluation workflow and activities on a Temporal task queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
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

			components, err := worker.Build(ctx, cfg, rt.logger, rt.metrics)
			if err != nil {
				return err
			}
			defer components.Close()

			c, err := dialTemporal(cfg.Temporal, rt)
			if err != nil {
				return err
			}
			defer c.Close()

			w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
			worker.RegisterAll(w, components)

			rt.logger.Info("worker started",
				"task_queue", cfg.Temporal.TaskQueue,
				"namespace", cfg.Temporal.Namespace,
				"checkpoint_dir", cfg.Run.CheckpointDir)
			return w.Run(sdkworker.InterruptCh())
		},
	}
}

func dialTemporal(cfg configuration.TemporalConfig, rt *runtime) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(rt.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
	}
	return c, nil
}
