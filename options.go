package spjobs

import (
	"crypto/x509"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// pollerConfig holds mutable state during JobPoller construction.
type pollerConfig struct {
	pollInterval     time.Duration
	maxWait          time.Duration
	requestTimeout   time.Duration
	maxResponseSize  int64
	transportRetries int
	retryInitial     time.Duration
	retryMax         time.Duration
	collection       string
	tokenHeader      string
	headers          map[string]string
	httpClient       *http.Client
	rootCAs          *x509.CertPool
	logger           *slog.Logger
	pollCallbacks    []func(PollEvent)
	registry         *prometheus.Registry
}

// Option configures a [JobPoller] during construction.
//
// Option implements the functional options pattern for [New]. Options return
// an error if validation fails.
type Option func(*pollerConfig) error

// WithPollInterval sets the fixed delay before each status query.
//
// Defaults to 1.5 seconds. The cadence is not adaptive: every wait, including
// the one before the first query, lasts exactly this long.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithMaxWait bounds how long [JobPoller.AwaitCompletion] waits for a job to
// reach a terminal state before failing with a [TimeoutError].
//
// Zero, the default, waits without limit. Returns an error if the duration is
// negative.
func WithMaxWait(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d < 0 {
			return errors.New("max wait cannot be negative")
		}
		cfg.maxWait = d
		return nil
	}
}

// WithRequestTimeout sets the timeout of each individual HTTP request.
//
// Defaults to 10 seconds. Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxResponseSize bounds the size in bytes of a response body read from
// the leader. A status response larger than this fails with a
// [*ProtocolError] instead of being cut short.
//
// Defaults to 64MB. Returns an error if n is zero or negative.
func WithMaxResponseSize(n int64) Option {
	return func(cfg *pollerConfig) error {
		if n <= 0 {
			return errors.New("max response size must be positive")
		}
		cfg.maxResponseSize = n
		return nil
	}
}

// WithTransportRetries allows up to n consecutive transport failures while
// polling before the last [TransportError] is returned.
//
// Zero, the default, makes every transport failure fatal. Retries apply only
// to status queries; a failed submission is never repeated, since the leader
// may already have created the job. Protocol errors are never retried.
//
// Returns an error if n is negative.
func WithTransportRetries(n int) Option {
	return func(cfg *pollerConfig) error {
		if n < 0 {
			return errors.New("transport retries cannot be negative")
		}
		cfg.transportRetries = n
		return nil
	}
}

// WithRetryBackoff sets the exponential delay used between transport retries:
// initial before the first retry, doubling up to maxDelay.
//
// Defaults to 250ms and 5s. Returns an error if either value is not positive
// or initial exceeds maxDelay.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if initial <= 0 || maxDelay <= 0 {
			return errors.New("retry backoff durations must be positive")
		}
		if initial > maxDelay {
			return errors.New("retry backoff initial delay exceeds max")
		}
		cfg.retryInitial = initial
		cfg.retryMax = maxDelay
		return nil
	}
}

// WithCollection sets the path, relative to the base URL, of the job-request
// collection.
//
// Defaults to "job-requests/". The DNS filter list workflow uses
// "tms_filter_list_requests/". A trailing slash is added if missing.
//
// Returns an error if the path is empty, absolute, or contains a query.
func WithCollection(path string) Option {
	return func(cfg *pollerConfig) error {
		path = strings.TrimSpace(path)
		switch {
		case path == "":
			return errors.New("collection path cannot be empty")
		case strings.HasPrefix(path, "/"):
			return errors.New("collection path must be relative to the base URL")
		case strings.ContainsAny(path, "?#"):
			return errors.New("collection path cannot contain a query or fragment")
		}
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		cfg.collection = path
		return nil
	}
}

// WithTokenHeader sets the name of the header carrying the API token.
//
// Defaults to "X-Arbux-APIToken". Returns an error if name is empty.
func WithTokenHeader(name string) Option {
	return func(cfg *pollerConfig) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("token header name cannot be empty")
		}
		cfg.tokenHeader = name
		return nil
	}
}

// WithHeaders adds custom HTTP headers to every request.
//
// Accepts variadic key-value pairs. The token header always wins over a
// custom header of the same name.
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *pollerConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithHTTPClient sends requests through hc instead of a client owned by the
// poller. [JobPoller.Close] leaves the connections of hc untouched.
//
// Returns an error if hc is nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *pollerConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithRootCAs sets the certificate pool used to verify the leader.
// Ignored when [WithHTTPClient] is also given.
//
// Returns an error if pool is nil.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(cfg *pollerConfig) error {
		if pool == nil {
			return errors.New("root CA pool cannot be nil")
		}
		cfg.rootCAs = pool
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the poller.
//
// If not specified, [slog.Default] is used. Returns an error if the logger is
// nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPollCallback registers a function called after every status query made
// by [JobPoller.AwaitCompletion], including failed ones.
//
// Callbacks run synchronously on the awaiting goroutine and must not block.
// Panics are recovered and logged. Nil callbacks are silently ignored.
func WithPollCallback(cb func(PollEvent)) Option {
	return func(cfg *pollerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.pollCallbacks = append(cfg.pollCallbacks, cb)
		return nil
	}
}

// WithMetricsRegistry records submissions, polls, retries and outcomes in reg.
//
// A [Batch] started with [Batch.Start] also serves reg at /metrics. Returns
// an error if reg is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *pollerConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// awaitConfig holds per-call settings of AwaitCompletion.
type awaitConfig struct {
	interval time.Duration
	maxWait  time.Duration
	onPoll   []func(PollEvent)
}

// AwaitOption overrides poller defaults for one call to
// [JobPoller.AwaitCompletion] or [JobPoller.Run].
type AwaitOption func(*awaitConfig) error

// PollInterval overrides the poll cadence for this call.
func PollInterval(d time.Duration) AwaitOption {
	return func(cfg *awaitConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// MaxWait overrides the maximum wait for this call. Zero waits without limit.
func MaxWait(d time.Duration) AwaitOption {
	return func(cfg *awaitConfig) error {
		if d < 0 {
			return errors.New("max wait cannot be negative")
		}
		cfg.maxWait = d
		return nil
	}
}

// OnPoll registers a callback for the status queries of this call only. It
// runs after callbacks registered with [WithPollCallback].
func OnPoll(cb func(PollEvent)) AwaitOption {
	return func(cfg *awaitConfig) error {
		if cb != nil {
			cfg.onPoll = append(cfg.onPoll, cb)
		}
		return nil
	}
}
