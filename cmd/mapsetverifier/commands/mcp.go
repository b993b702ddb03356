package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mapset-verifier/server/pkg/config"
	"github.com/mapset-verifier/server/pkg/mcp"
	"github.com/mapset-verifier/server/pkg/observability"
	"github.com/mapset-verifier/server/pkg/snapshot"
	"github.com/mapset-verifier/server/pkg/verifier"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath    string
		debug         bool
		withSnapshots bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the verifier as tools that AI agents can discover
and invoke:
  - mapset_verify: Run checks, snapshots and overview on a beatmap set directory
  - mapset_documentation: Render the check documentation or one check's overlay`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			providers, err := initMCPObservability(cfg, debug)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			red, redErr := observability.NewREDMetrics(providers.Meter)
			if redErr != nil {
				return redErr
			}

			taskMetrics, taskErr := observability.NewTaskMetrics(providers.Meter)
			if taskErr != nil {
				return taskErr
			}

			ctx := cobraCmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			verifierDeps := verifier.Deps{Logger: providers.Logger, Tracer: providers.Tracer}

			if withSnapshots {
				store, openErr := snapshot.Open(ctx, cfg.Snapshots.Database)
				if openErr != nil {
					return openErr
				}

				defer store.Close()

				maxFileSize, sizeErr := cfg.Snapshots.MaxFileSizeBytes()
				if sizeErr != nil {
					return sizeErr
				}

				verifierDeps.Snapshots = store
				verifierDeps.SnapshotOptions = snapshot.Options{
					HistoryLimit: cfg.Snapshots.HistoryLimit,
					MaxFileSize:  maxFileSize,
				}
			}

			v, err := verifier.New(verifierDeps)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Verifier:    v,
				TaskTimeout: cfg.Analysis.TaskTimeout,
				Logger:      providers.Logger,
				Metrics:     red,
				TaskMetrics: taskMetrics,
				Tracer:      providers.Tracer,
			})

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().BoolVar(&withSnapshots, "snapshots", true, "Record snapshots in the configured database")

	return cmd
}

// initMCPObservability logs JSON to stderr since stdout carries the protocol.
func initMCPObservability(cfg *config.Config, debug bool) (observability.Providers, error) {
	cfg.Logging.Format = "json"

	if debug {
		cfg.Logging.Level = "debug"
		cfg.Observability.DebugTrace = true
	}

	return initObservability(cfg, observability.ModeMCP)
}
