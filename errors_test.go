package spjobs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestTransportError(t *testing.T) {
	cause := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "with message",
			err:  &TransportError{Op: "submit", URL: "https://sp/x/", StatusCode: 401, Message: "invalid API token"},
			want: "submit https://sp/x/: unexpected status 401: invalid API token",
		},
		{
			name: "status only",
			err:  &TransportError{Op: "status", URL: "https://sp/x/1", StatusCode: 502},
			want: "status https://sp/x/1: unexpected status 502",
		},
		{
			name: "cause",
			err:  &TransportError{Op: "status", URL: "https://sp/x/1", Cause: cause},
			want: "status https://sp/x/1: dial: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrTransport) {
				t.Error("errors.Is(err, ErrTransport) = false")
			}
		})
	}

	wrapped := fmt.Errorf("outer: %w", &TransportError{Op: "status", Cause: cause})
	var opErr *net.OpError
	if !errors.As(wrapped, &opErr) {
		t.Error("errors.As should reach the transport cause")
	}
}

func TestProtocolError(t *testing.T) {
	cause := errors.New("malformed response: missing data.id")
	err := &ProtocolError{Op: "submit", URL: "https://sp/x/", Cause: cause}

	if !errors.Is(err, ErrProtocol) {
		t.Error("errors.Is(err, ErrProtocol) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if !strings.Contains(err.Error(), "missing data.id") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestJobFailedError(t *testing.T) {
	err := &JobFailedError{Handle: "42", Message: "zone not found"}
	if err.Error() != "job 42 failed: zone not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrJobFailed) {
		t.Error("errors.Is(err, ErrJobFailed) = false")
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Handle: "42", MaxWait: 30 * time.Second, Polls: 20}
	if err.Error() != "job 42 still pending after 30s (20 polls)" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Phase
	}{
		{"nil", nil, PhaseSucceeded},
		{"job failed", &JobFailedError{Handle: "1", Message: "x"}, PhaseFailed},
		{"timeout", &TimeoutError{Handle: "1"}, PhaseTimedOut},
		{"protocol", &ProtocolError{Op: "status", Cause: errors.New("x")}, PhaseProtocolError},
		{"transport", &TransportError{Op: "status", StatusCode: 500}, PhaseTransportFailed},
		{"transport with deadline cause", &TransportError{Op: "status", Cause: context.DeadlineExceeded}, PhaseTransportFailed},
		{"cancelled", fmt.Errorf("await job 1: %w", context.Canceled), PhaseCancelled},
		{"deadline", context.DeadlineExceeded, PhaseCancelled},
		{"unknown", errors.New("boom"), PhaseTransportFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhase_Terminal(t *testing.T) {
	nonTerminal := []Phase{"", PhaseQueued, PhaseSubmitted, PhasePolling}
	for _, p := range nonTerminal {
		if p.Terminal() {
			t.Errorf("%q.Terminal() = true", p)
		}
	}
	terminal := []Phase{PhaseSucceeded, PhaseFailed, PhaseTimedOut, PhaseTransportFailed, PhaseProtocolError, PhaseCancelled}
	for _, p := range terminal {
		if !p.Terminal() {
			t.Errorf("%q.Terminal() = false", p)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	if StatePending.Terminal() {
		t.Error("pending reported as terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Error("completed/failed should be terminal")
	}
}
