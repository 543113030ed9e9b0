package spjobs

import (
	"context"
	"errors"
)

// Phase is the lifecycle position of a job run by a [Batch].
type Phase string

const (
	PhaseQueued          Phase = "queued"
	PhaseSubmitted       Phase = "submitted"
	PhasePolling         Phase = "polling"
	PhaseSucceeded       Phase = "succeeded"
	PhaseFailed          Phase = "failed"
	PhaseTimedOut        Phase = "timed_out"
	PhaseTransportFailed Phase = "transport_failed"
	PhaseProtocolError   Phase = "protocol_error"
	PhaseCancelled       Phase = "cancelled"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Terminal reports whether the phase is a final outcome.
func (p Phase) Terminal() bool {
	return p != PhaseQueued && p != PhaseSubmitted && p != PhasePolling && p != ""
}

// Classify maps the error returned by [JobPoller.Run] or
// [JobPoller.AwaitCompletion] to the terminal [Phase] it represents.
func Classify(err error) Phase {
	switch {
	case err == nil:
		return PhaseSucceeded
	case errors.Is(err, ErrJobFailed):
		return PhaseFailed
	case errors.Is(err, ErrTimeout):
		return PhaseTimedOut
	case errors.Is(err, ErrProtocol):
		return PhaseProtocolError
	case errors.Is(err, ErrTransport):
		return PhaseTransportFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return PhaseCancelled
	default:
		return PhaseTransportFailed
	}
}
