package spjobs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is.
var (
	ErrTransport = errors.New("transport error")
	ErrProtocol  = errors.New("protocol error")
	ErrJobFailed = errors.New("job failed")
	ErrTimeout   = errors.New("job wait timed out")
)

// TransportError reports a connection or HTTP-layer failure: the request
// could not be made, or the endpoint answered with a non-success status.
type TransportError struct {
	Op         string // "submit" or "status"
	URL        string
	StatusCode int    // zero when no response was received
	Message    string // remote error detail, if the response carried one
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Cause)
	}
}

// Unwrap returns the sentinel and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return unwrapAll(ErrTransport, e.Cause)
}

// ProtocolError reports a response whose body does not have the expected shape.
type ProtocolError struct {
	Op    string
	URL   string
	Cause error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Cause)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *ProtocolError) Unwrap() []error {
	return unwrapAll(ErrProtocol, e.Cause)
}

// JobFailedError reports a job the remote system marked as failed.
// Message is the remote error text, unmodified.
type JobFailedError struct {
	Handle  Handle
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.Handle, e.Message)
}

// Unwrap returns ErrJobFailed.
func (e *JobFailedError) Unwrap() error {
	return ErrJobFailed
}

// TimeoutError reports that a job did not reach a terminal state within the
// configured maximum wait.
type TimeoutError struct {
	Handle  Handle
	MaxWait time.Duration
	Polls   int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s still pending after %s (%d polls)", e.Handle, e.MaxWait, e.Polls)
}

// Unwrap returns ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

func unwrapAll(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
