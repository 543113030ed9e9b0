package spjobs

import (
	"encoding/json"
	"time"
)

// Handle identifies a job on the remote system.
//
// Handles are issued by the SP leader when a job request is created and are
// opaque to the poller.
type Handle string

// String returns the handle as a string.
func (h Handle) String() string {
	return string(h)
}

// State is the remote state of a job.
//
// State transitions are monotone: [StatePending] moves to either
// [StateCompleted] or [StateFailed] and never changes afterwards.
type State string

const (
	// StatePending indicates the job is still being processed.
	StatePending State = "pending"

	// StateCompleted indicates the job finished and carries a result.
	StateCompleted State = "completed"

	// StateFailed indicates the remote reported an error for the job.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// JobStatus is a single observation of a job's remote status.
type JobStatus struct {
	// Handle is the job that was queried.
	Handle Handle

	// State is the interpreted job state.
	State State

	// Result is the raw result payload. Set only when State is StateCompleted.
	Result json.RawMessage

	// Error is the remote error message. Set only when State is StateFailed.
	Error string

	// CheckedAt is when the status response was received.
	CheckedAt time.Time
}

// PollEvent describes one status query made while awaiting a job.
//
// PollEvent values are passed to callbacks registered with
// [WithPollCallback] and [OnPoll].
type PollEvent struct {
	// Handle is the job being awaited.
	Handle Handle

	// Attempt is the 1-based number of this query within the await.
	Attempt int

	// Status is the observed status. Zero when Err is set.
	Status JobStatus

	// Err is the error of a failed query, nil otherwise.
	Err error

	// Latency is the time taken by the HTTP request.
	Latency time.Duration
}
