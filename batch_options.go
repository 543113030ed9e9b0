package spjobs

import (
	"errors"
	"log/slog"
)

// batchConfig holds mutable state during Batch construction.
type batchConfig struct {
	jobs             []Job
	maxConcurrency   int
	port             int
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
}

// BatchOption configures a [Batch] during construction.
//
// BatchOption implements the functional options pattern for [NewBatch].
// Options return an error if validation fails.
type BatchOption func(*batchConfig) error

// WithJob adds a single job to the batch.
//
// Can be called multiple times to add multiple jobs.
func WithJob(job Job) BatchOption {
	return func(cfg *batchConfig) error {
		cfg.jobs = append(cfg.jobs, job)
		return nil
	}
}

// WithJobs adds multiple jobs to the batch.
//
// Equivalent to calling [WithJob] for each job. Typically used with
// [NewJobMatrix].
func WithJobs(jobs ...Job) BatchOption {
	return func(cfg *batchConfig) error {
		cfg.jobs = append(cfg.jobs, jobs...)
		return nil
	}
}

// WithMaxConcurrency sets how many jobs are submitted and awaited at once.
//
// Defaults to 4. Each in-flight job holds one worker for its whole
// submit-and-await sequence.
//
// Returns an error if n is less than 1.
func WithMaxConcurrency(n int) BatchOption {
	return func(cfg *batchConfig) error {
		if n < 1 {
			return errors.New("max concurrency must be at least 1")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithPort sets the HTTP port of the status API served by [Batch.Start].
//
// Defaults to 8080. Port validation (1-65535) occurs in [NewBatch].
func WithPort(port int) BatchOption {
	return func(cfg *batchConfig) error {
		cfg.port = port
		return nil
	}
}

// WithBatchLogger sets a custom [slog.Logger] for the batch.
//
// If not specified, [slog.Default] is used. Returns an error if the logger is
// nil.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(cfg *batchConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithOutcomeCallback registers a function called once for every finished job.
//
// Callbacks run on the worker goroutine that ran the job, after the status
// store has been updated, so they may be invoked concurrently for different
// jobs. Panics are recovered and logged. Nil callbacks are silently ignored.
//
// Example:
//
//	spjobs.WithOutcomeCallback(func(o spjobs.Outcome) {
//	    if o.Err != nil {
//	        alerting.Send(o.JobName, o.Err)
//	    }
//	})
func WithOutcomeCallback(cb func(Outcome)) BatchOption {
	return func(cfg *batchConfig) error {
		if cb == nil {
			return nil
		}
		cfg.outcomeCallbacks = append(cfg.outcomeCallbacks, cb)
		return nil
	}
}
