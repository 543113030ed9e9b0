package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jpalmerr/spjobs"
	"github.com/jpalmerr/spjobs/config"
	"github.com/spf13/cobra"
)

// maxResultWidth truncates results in the outcome table.
const maxResultWidth = 60

// runCmd runs every configured job once and reports the outcomes.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured jobs and print their outcomes",
	Long: `Submit every job in the configuration file, wait for all of them to
finish, and print one line per job.

Jobs run concurrently up to max_concurrency. A failing job never stops the
others. The command exits non-zero if any job did not succeed.

Interrupting (Ctrl+C) abandons the remaining waits; jobs already created on
the leader keep running there.

Example:
  spjobs run -c config.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	batch, err := buildBatch(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBatch(ctx, batch, cmd.OutOrStdout())
}

// buildBatch turns a loaded config into a ready-to-run batch.
func buildBatch(cfg *config.Config, logger *slog.Logger, extra ...spjobs.Option) (*spjobs.Batch, error) {
	jobs, err := config.BuildJobs(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build jobs: %w", err)
	}

	poller, err := config.BuildPoller(cfg, append([]spjobs.Option{spjobs.WithLogger(logger)}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create job poller: %w", err)
	}

	logger.Info("config loaded",
		"jobs", len(jobs),
		"collection", poller.CollectionURL(),
		"poll_interval", poller.PollInterval().String(),
	)

	batch, err := spjobs.NewBatch(poller,
		spjobs.WithJobs(jobs...),
		spjobs.WithMaxConcurrency(cfg.MaxConcurrency),
		spjobs.WithPort(cfg.Port),
		spjobs.WithBatchLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	return batch, nil
}

// runBatch runs batch to completion and prints the outcome table to w.
func runBatch(ctx context.Context, batch *spjobs.Batch, w io.Writer) error {
	outcomes := batch.Run(ctx)
	if err := printOutcomes(w, outcomes); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not succeed", failed, len(outcomes))
	}
	return nil
}

// printOutcomes writes one aligned line per outcome.
func printOutcomes(w io.Writer, outcomes []spjobs.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tHANDLE\tPHASE\tPOLLS\tDETAIL")
	for _, o := range outcomes {
		handle := o.Handle.String()
		if handle == "" {
			handle = "-"
		}

		detail := o.Result.String()
		if o.Err != nil {
			detail = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.JobName, handle, o.Phase, o.Result.Polls, truncate(detail, maxResultWidth))
	}
	return tw.Flush()
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
