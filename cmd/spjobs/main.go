// Package main is the entry point for the spjobs CLI.
//
// spjobs can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	spjobs submit --base-url URL --detail zone=example.com # Run one job
//	spjobs run -c config.yaml                              # Run a batch of jobs
//	spjobs serve -c config.yaml                            # Run a batch with the status API
//	spjobs validate -c config.yaml                         # Validate configuration
//	spjobs version                                         # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "spjobs",
	Short: "Submit and await long-running SP jobs",
	Long: `spjobs submits long-running job requests to an SP leader's REST API and
waits for them to finish.

A job is created with a single POST, then its status is polled at a fixed
interval until it completes or reports an error. The completed job's result
is printed as JSON.

Quick start:
  export SP_API_TOKEN=...
  spjobs submit --base-url https://leader.example.com/api/sp/ \
    --detail server=ns.example.com --detail zone=zone-to-block.example.com

For many jobs, describe them in a YAML file and use "spjobs run".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this spjobs binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "spjobs %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().Bool("debug", false, "log every status query")
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}
