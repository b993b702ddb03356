package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mapset-verifier/server/pkg/config"
	"github.com/mapset-verifier/server/pkg/observability"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the verifier server for the desktop client",
		Long: `Start the HTTP server the desktop client connects to.

The client opens a WebSocket on the hub path, asks for a beatmap set directory
and receives the checks, snapshots and overview views as they complete.
Health routes: /healthz, /readyz, and /metrics when Prometheus is enabled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if cobraCmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}

			if cobraCmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			return runServe(cobraCmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "listen port (overrides server.port)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := initObservability(cfg, observability.ModeServe)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	srv, err := NewServer(ctx, cfg, providers)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := srv.Close()
		if closeErr != nil {
			providers.Logger.Warn("server close failed", "error", closeErr)
		}
	}()

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- httpSrv.Serve(listener)
	}()

	providers.Logger.Info("server listening",
		"addr", listener.Addr().String(), "hub", cfg.Server.HubPath, "database", cfg.Snapshots.Database)

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	providers.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; Close on
	// the server disconnects the client.
	err = httpSrv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
