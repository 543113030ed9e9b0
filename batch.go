package spjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/spjobs/internal/server"
	"github.com/jpalmerr/spjobs/internal/store"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = 4
)

// Outcome is the final result of one job run by a [Batch].
type Outcome struct {
	// JobName is the name of the job.
	JobName string

	// Handle is the id assigned by the leader. Empty if submission failed.
	Handle Handle

	// Labels is a copy of the job's labels.
	Labels map[string]string

	// Phase is the terminal phase the job reached.
	Phase Phase

	// Result is the completed job's result. Zero unless Phase is PhaseSucceeded.
	Result JobResult

	// Err is the error that ended the job, nil on success.
	Err error

	// StartedAt is when the job left the queue.
	StartedAt time.Time

	// FinishedAt is when the job reached its terminal phase.
	FinishedAt time.Time
}

// Batch runs many named jobs through one [JobPoller] with bounded
// concurrency.
//
// Every job is an independent submit-and-await sequence; a failure of one
// job never affects another. A Batch is created with [NewBatch] and run with
// [Batch.Run], or with [Batch.Start] to also serve live job state over HTTP.
//
// The typical lifecycle is:
//
//	batch, err := spjobs.NewBatch(poller, spjobs.WithJobs(jobs...))
//	if err != nil {
//	    return err
//	}
//	for _, o := range batch.Run(ctx) {
//	    fmt.Println(o.JobName, o.Phase)
//	}
type Batch struct {
	poller           *JobPoller
	jobs             []Job
	maxConcurrency   int
	port             int
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
}

// NewBatch creates a [Batch] that runs jobs through p.
//
// At least one job must be configured via [WithJob] or [WithJobs]. Other
// options have sensible defaults:
//   - Max concurrency: 4
//   - Port: 8080
//
// Returns an error if p is nil, no jobs are configured, job names are not
// unique, or any option is invalid.
func NewBatch(p *JobPoller, opts ...BatchOption) (*Batch, error) {
	if p == nil {
		return nil, errors.New("job poller cannot be nil")
	}

	cfg := &batchConfig{
		maxConcurrency: defaultMaxConcurrency,
		port:           defaultPort,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.jobs) == 0 {
		return nil, errors.New("at least one job is required")
	}

	// names key the status store and the outcome list
	seen := make(map[string]bool, len(cfg.jobs))
	for _, job := range cfg.jobs {
		if job.name == "" {
			return nil, errors.New("job is not initialised")
		}
		if seen[job.name] {
			return nil, fmt.Errorf("duplicate job name: %q", job.name)
		}
		seen[job.name] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Batch{
		poller:           p,
		jobs:             cfg.jobs,
		maxConcurrency:   cfg.maxConcurrency,
		port:             cfg.port,
		logger:           logger,
		outcomeCallbacks: cfg.outcomeCallbacks,
	}, nil
}

// Jobs returns a copy of the configured jobs.
func (b *Batch) Jobs() []Job {
	cp := make([]Job, len(b.jobs))
	copy(cp, b.jobs)
	return cp
}

// Port returns the configured HTTP port for the status API.
func (b *Batch) Port() int {
	return b.port
}

// MaxConcurrency returns the number of jobs run at once.
func (b *Batch) MaxConcurrency() int {
	return b.maxConcurrency
}

// Run submits and awaits every job and returns their outcomes in job order.
//
// Run blocks until all jobs are terminal. Cancelling ctx abandons in-flight
// waits; jobs not yet started are reported as [PhaseCancelled] without being
// submitted.
func (b *Batch) Run(ctx context.Context) []Outcome {
	return b.run(ctx, store.NewMemoryStore())
}

// Start runs every job and serves their live state over HTTP.
//
// Start is a blocking call that runs until the provided context is cancelled,
// serving the endpoints of the status API on the configured port:
//
//   - GET /api/jobs and GET /api/jobs/{name}: job records as JSON
//   - GET /api/sse: Server-Sent Events stream of record updates
//   - GET /metrics: Prometheus metrics, if the poller has a metrics registry
//
// Records stay available after every job has finished until ctx is cancelled.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (b *Batch) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	st := store.NewMemoryStore()

	httpServer := server.NewServer(st, b.port, b.metricsHandler(), b.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	b.logger.Info("status API available", "url", fmt.Sprintf("http://localhost:%d/api/jobs", b.port))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.run(ctx, st)
	}()

	<-ctx.Done()
	wg.Wait()
	b.logger.Info("batch stopped")
	return nil
}

// metricsHandler serves the poller's registry, or nil without one.
func (b *Batch) metricsHandler() http.Handler {
	if b.poller.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(b.poller.registry, promhttp.HandlerOpts{})
}

// run executes all jobs on a fixed pool of workers, recording progress in st.
func (b *Batch) run(ctx context.Context, st store.Store) []Outcome {
	now := time.Now()
	for _, job := range b.jobs {
		st.Update(store.JobRecord{
			Name:        job.name,
			RequestType: job.request.Type(),
			Labels:      job.labels,
			Phase:       PhaseQueued.String(),
			UpdatedAt:   now,
		})
	}

	b.logger.Info("batch starting",
		"job_count", len(b.jobs),
		"max_concurrency", b.maxConcurrency,
	)

	outcomes := make([]Outcome, len(b.jobs))
	indices := make(chan int, len(b.jobs))
	for i := range b.jobs {
		indices <- i
	}
	close(indices)

	workers := min(b.maxConcurrency, len(b.jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				outcomes[i] = b.runJob(ctx, b.jobs[i], st)
			}
		}()
	}
	wg.Wait()

	counts := make(map[Phase]int)
	for _, o := range outcomes {
		counts[o.Phase]++
	}
	b.logger.Info("batch finished",
		"succeeded", counts[PhaseSucceeded],
		"failed", len(outcomes)-counts[PhaseSucceeded],
	)
	return outcomes
}

// runJob drives one job from submission to a terminal phase.
func (b *Batch) runJob(ctx context.Context, job Job, st store.Store) Outcome {
	out := Outcome{
		JobName:   job.name,
		Labels:    copyMap(job.labels),
		StartedAt: time.Now(),
	}
	record := store.JobRecord{
		Name:        job.name,
		RequestType: job.request.Type(),
		Labels:      job.labels,
		Phase:       PhaseQueued.String(),
	}

	if err := ctx.Err(); err != nil {
		return b.complete(out, record, st, JobResult{}, err)
	}

	handle, err := b.poller.Submit(ctx, job.request)
	if err != nil {
		return b.complete(out, record, st, JobResult{}, err)
	}

	out.Handle = handle
	record.Handle = handle.String()
	record.Phase = PhaseSubmitted.String()
	record.SubmittedAt = time.Now()
	record.UpdatedAt = record.SubmittedAt
	st.Update(record)

	result, err := b.poller.AwaitCompletion(ctx, handle, OnPoll(func(ev PollEvent) {
		record.Polls = ev.Attempt
		record.Phase = PhasePolling.String()
		record.UpdatedAt = time.Now()
		st.Update(record)
	}))
	return b.complete(out, record, st, result, err)
}

// complete records the terminal phase of a job and fires outcome callbacks.
func (b *Batch) complete(out Outcome, record store.JobRecord, st store.Store, result JobResult, err error) Outcome {
	out.Phase = Classify(err)
	out.Err = err
	out.Result = result
	out.FinishedAt = time.Now()

	record.Phase = out.Phase.String()
	record.UpdatedAt = out.FinishedAt
	if err != nil {
		msg := err.Error()
		record.Error = &msg
	} else {
		record.Result = result.Payload
		record.Polls = result.Polls
	}

	// store update first (callbacks fire after data is persisted)
	st.Update(record)

	logAttrs := []any{
		"job", out.JobName,
		"handle", out.Handle.String(),
		"phase", out.Phase.String(),
		"duration", out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond).String(),
	}
	if err != nil {
		b.logger.Warn("job finished with error", append(logAttrs, "error", err.Error())...)
	} else {
		b.logger.Debug("job finished", logAttrs...)
	}

	for _, cb := range b.outcomeCallbacks {
		invokeSafe(b.logger, "outcome callback", out.JobName, func() { cb(out) })
	}
	return out
}
