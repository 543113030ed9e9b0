package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/spjobs"
	"github.com/jpalmerr/spjobs/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd runs the configured jobs behind the status API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configured jobs and serve their status",
	Long: `Run every configured job and serve live job state over HTTP.

The server will:
  - Load configuration from the specified YAML file
  - Submit and await all configured jobs
  - Serve job records on /api/jobs, updates on /api/sse and
    Prometheus metrics on /metrics

Records stay available after the jobs finish. The server runs until
interrupted (Ctrl+C) or receives SIGTERM.

Example:
  spjobs serve -c config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	batch, err := buildBatch(cfg, logger, spjobs.WithMetricsRegistry(reg))
	if err != nil {
		return err
	}
	logger.Info("starting server", "port", batch.Port())

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serveBatch(ctx, batch, shutdownTimeout, logger)
}

// serveBatch runs batch.Start until ctx is cancelled, giving it timeout to
// wind down afterwards.
func serveBatch(ctx context.Context, batch *spjobs.Batch, timeout time.Duration, logger *slog.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- batch.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// wait for in-flight jobs to observe cancellation
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(timeout):
			logger.Warn("shutdown timed out",
				"timeout", timeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
