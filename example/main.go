package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/spjobs"
)

func main() {
	// start mock leader (see mock_leader.go)
	go StartMockLeader(":9999")
	time.Sleep(100 * time.Millisecond)

	poller, err := spjobs.New(
		spjobs.Config{BaseURL: "http://localhost:9999/api/sp/", Token: "demo-token"},
		spjobs.WithCollection("tms_filter_list_requests/"),
		spjobs.WithPollInterval(time.Second),
		spjobs.WithMaxWait(time.Minute),
		spjobs.WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err != nil {
		slog.Error("failed to create job poller", "error", err)
		os.Exit(1)
	}
	defer poller.Close()

	// one job, the simple way
	req, err := spjobs.NewDNSFilterListRequest("ns1.example.com", "example.com")
	if err != nil {
		slog.Error("failed to create request", "error", err)
		os.Exit(1)
	}
	result, err := poller.Run(context.Background(), req)
	if err != nil {
		slog.Error("job failed", "error", err)
		os.Exit(1)
	}
	zones, _ := result.Strings()
	fmt.Printf("filter list after %d polls: %v\n", result.Polls, zones)

	// matrix: 2 servers x 3 zones = 6 jobs from one declaration
	jobs, err := spjobs.NewJobMatrix("filter list", spjobs.RequestTypeDNSFilterList,
		spjobs.WithDetailTemplates(map[string]string{
			"server": "{{.server}}",
			"zone":   "{{.zone}}",
		}),
		spjobs.WithDimensions(map[string][]string{
			"server": {"ns1.example.com", "ns2.example.com"},
			"zone":   {"example.com", "example.org", "refused.example.net"},
		}),
		spjobs.WithMatrixLabels("team", "dns"),
	)
	if err != nil {
		slog.Error("failed to create job matrix", "error", err)
		os.Exit(1)
	}

	batch, err := spjobs.NewBatch(poller,
		spjobs.WithJobs(jobs...),
		spjobs.WithMaxConcurrency(3),
		spjobs.WithPort(8080),
		spjobs.WithOutcomeCallback(func(o spjobs.Outcome) {
			fmt.Printf("  %-45s %s\n", o.JobName, o.Phase)
		}),
	)
	if err != nil {
		slog.Error("failed to create batch", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Job status:  http://localhost:8080/api/jobs")
	fmt.Println("  Live events: http://localhost:8080/api/sse")
	fmt.Println("  Metrics:     http://localhost:8080/metrics")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := batch.Start(ctx); err != nil {
		slog.Error("batch error", "error", err)
		os.Exit(1)
	}
}
