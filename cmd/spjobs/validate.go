package main

import (
	"fmt"

	"github.com/jpalmerr/spjobs/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without contacting the leader.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an spjobs configuration file without submitting anything.

This command parses the YAML, expands environment variables, validates all
fields and expands job matrices. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  spjobs validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// expanding catches template keys that are not dimensions
	jobs, err := config.BuildJobs(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	directJobs := len(cfg.Jobs)
	matrixJobs := len(jobs) - directJobs

	maxWait := "unbounded"
	if cfg.Poll.MaxWait != 0 {
		maxWait = cfg.Poll.MaxWait.Duration().String()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Leader:        %s\n", cfg.API.BaseURL)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.Poll.Interval.Duration())
	fmt.Fprintf(out, "  Max wait:      %s\n", maxWait)
	fmt.Fprintf(out, "  Concurrency:   %d\n", cfg.MaxConcurrency)
	fmt.Fprintf(out, "  Jobs:          %d direct + %d from matrices = %d total\n",
		directJobs, matrixJobs, len(jobs))

	return nil
}
