package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/spjobs"
	"github.com/jpalmerr/spjobs/config"
)

const (
	tokenEnvVar       = "SP_API_TOKEN"
	defaultCollection = "tms_filter_list_requests/"

	outputJSON  = "json"
	outputLines = "lines"
)

// submitCmd creates one job from flags and waits for its result.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit one job and print its result",
	Long: `Submit a single job request and wait for it to complete.

The job's details are given as repeated --detail key=value flags. The API
token is read from --token or the SP_API_TOKEN environment variable.

On success the result is printed to stdout, either as JSON or, with
--output lines, one string per line for list results such as DNS filter
lists.

Example:
  spjobs submit --base-url https://leader.example.com/api/sp/ \
    --detail server=ns.example.com --detail zone=zone-to-block.example.com \
    --max-wait 10m --output lines`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	f := submitCmd.Flags()
	f.String("base-url", "", "root of the leader's REST API (required)")
	f.String("token", "", "API token (default $"+tokenEnvVar+")")
	f.String("token-header", "", "header carrying the API token (default X-Arbux-APIToken)")
	f.String("collection", defaultCollection, "job-request collection, relative to --base-url")
	f.String("ca-file", "", "PEM bundle used to verify the leader")
	f.String("type", spjobs.RequestTypeDNSFilterList, "request type")
	f.StringArray("detail", nil, "request detail as key=value (repeatable)")
	f.Duration("interval", 1500*time.Millisecond, "delay before each status query")
	f.Duration("max-wait", 0, "maximum time to wait for completion (0 waits forever)")
	f.Duration("timeout", 10*time.Second, "per-request timeout")
	f.Int("retries", 0, "transport failures tolerated while polling")
	f.StringP("output", "o", outputJSON, "result format: json or lines")
	_ = submitCmd.MarkFlagRequired("base-url")
}

// submitOptions are the parsed submit flags.
type submitOptions struct {
	api     config.APIConfig
	poll    config.PollConfig
	jobType string
	details map[string]any
	output  string
}

func runSubmit(cmd *cobra.Command, args []string) error {
	opts, err := parseSubmitFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return submitJob(ctx, opts, newLogger(cmd), cmd.OutOrStdout())
}

func parseSubmitFlags(cmd *cobra.Command) (submitOptions, error) {
	f := cmd.Flags()
	baseURL, _ := f.GetString("base-url")
	token, _ := f.GetString("token")
	tokenHeader, _ := f.GetString("token-header")
	collection, _ := f.GetString("collection")
	caFile, _ := f.GetString("ca-file")
	jobType, _ := f.GetString("type")
	rawDetails, _ := f.GetStringArray("detail")
	interval, _ := f.GetDuration("interval")
	maxWait, _ := f.GetDuration("max-wait")
	timeout, _ := f.GetDuration("timeout")
	retries, _ := f.GetInt("retries")
	output, _ := f.GetString("output")

	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}
	if token == "" {
		return submitOptions{}, fmt.Errorf("an API token is required: use --token or set %s", tokenEnvVar)
	}

	details, err := parseDetails(rawDetails)
	if err != nil {
		return submitOptions{}, err
	}

	if output != outputJSON && output != outputLines {
		return submitOptions{}, fmt.Errorf("--output must be %s or %s, got %q", outputJSON, outputLines, output)
	}

	return submitOptions{
		api: config.APIConfig{
			BaseURL:     baseURL,
			Token:       token,
			TokenHeader: tokenHeader,
			Collection:  collection,
			Timeout:     config.Duration(timeout),
			CAFile:      caFile,
		},
		poll: config.PollConfig{
			Interval:         config.Duration(interval),
			MaxWait:          config.Duration(maxWait),
			TransportRetries: retries,
		},
		jobType: jobType,
		details: details,
		output:  output,
	}, nil
}

// parseDetails turns key=value pairs into request details.
func parseDetails(pairs []string) (map[string]any, error) {
	details := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --detail %q: want key=value", pair)
		}
		details[strings.TrimSpace(key)] = value
	}
	return details, nil
}

// submitJob runs one job and writes its result to w.
func submitJob(ctx context.Context, opts submitOptions, logger *slog.Logger, w io.Writer) error {
	poller, err := config.BuildPoller(&config.Config{API: opts.api, Poll: opts.poll}, spjobs.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create job poller: %w", err)
	}
	defer poller.Close()

	req, err := spjobs.NewJobRequest(opts.jobType, spjobs.WithDetails(opts.details))
	if err != nil {
		return err
	}

	result, err := poller.Run(ctx, req)
	if err != nil {
		return err
	}

	return writeResult(w, result, opts.output)
}

// writeResult prints result in the requested format.
func writeResult(w io.Writer, result spjobs.JobResult, output string) error {
	if output == outputLines {
		lines, err := result.Strings()
		if err != nil {
			return fmt.Errorf("result is not a list of strings: %w", err)
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		return nil
	}

	if result.Empty() {
		fmt.Fprintln(w, "null")
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result.Payload, "", "  "); err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
