package spjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/spjobs/internal/backoff"
	"github.com/jpalmerr/spjobs/internal/metrics"
	"github.com/jpalmerr/spjobs/internal/restapi"
)

const (
	defaultPollInterval   = 1500 * time.Millisecond
	defaultRequestTimeout = 10 * time.Second
	defaultCollection     = "job-requests/"
	defaultTokenHeader    = "X-Arbux-APIToken"

	opSubmit = "submit"
	opStatus = "status"
)

// Config identifies the SP leader a [JobPoller] talks to.
type Config struct {
	// BaseURL is the root of the REST API, e.g. "https://leader.example.com/api/sp/".
	BaseURL string

	// Token is the static API token sent with every request.
	Token string
}

// JobPoller submits long-running jobs and waits for their completion.
//
// A JobPoller is created with [New] and is safe for concurrent use: its
// configuration is immutable, and each Submit/AwaitCompletion sequence is
// independent of every other.
//
// The typical flow is:
//
//	p, err := spjobs.New(spjobs.Config{BaseURL: base, Token: token})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	handle, err := p.Submit(ctx, req)
//	if err != nil {
//	    return err
//	}
//	result, err := p.AwaitCompletion(ctx, handle)
type JobPoller struct {
	collectionURL    string
	token            string
	tokenHeader      string
	headers          map[string]string
	client           *restapi.Client
	pollInterval     time.Duration
	maxWait          time.Duration
	requestTimeout   time.Duration
	maxResponseSize  int64
	transportRetries int
	retryBackoff     backoff.Config
	logger           *slog.Logger
	pollCallbacks    []func(PollEvent)
	metrics          *metrics.Recorder
	registry         *prometheus.Registry
}

// New creates a [JobPoller] for the leader described by cfg.
//
// Defaults:
//   - Poll interval: 1.5 seconds
//   - Max wait: unbounded
//   - Transport retries: none
//   - Request timeout: 10 seconds
//   - Collection: "job-requests/"
//   - Token header: "X-Arbux-APIToken"
//
// Returns an error if the base URL is not an absolute http(s) URL, the token
// is empty, or any option is invalid.
func New(cfg Config, opts ...Option) (*JobPoller, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("API token cannot be empty")
	}

	pc := &pollerConfig{
		pollInterval:    defaultPollInterval,
		requestTimeout:  defaultRequestTimeout,
		maxResponseSize: restapi.DefaultMaxResponseSize,
		collection:      defaultCollection,
		tokenHeader:     defaultTokenHeader,
		headers:         make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(pc); err != nil {
			return nil, err
		}
	}

	ref, err := url.Parse(pc.collection)
	if err != nil {
		return nil, fmt.Errorf("invalid collection path: %w", err)
	}

	logger := pc.logger
	if logger == nil {
		logger = slog.Default()
	}

	var recorder *metrics.Recorder
	if pc.registry != nil {
		recorder, err = metrics.New(pc.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	var client *restapi.Client
	if pc.httpClient != nil {
		client = restapi.WrapClient(pc.httpClient)
	} else {
		client = restapi.NewClient(pc.rootCAs)
	}

	return &JobPoller{
		collectionURL:    base.ResolveReference(ref).String(),
		token:            cfg.Token,
		tokenHeader:      pc.tokenHeader,
		headers:          pc.headers,
		client:           client,
		pollInterval:     pc.pollInterval,
		maxWait:          pc.maxWait,
		requestTimeout:   pc.requestTimeout,
		maxResponseSize:  pc.maxResponseSize,
		transportRetries: pc.transportRetries,
		retryBackoff:     backoff.Config{Initial: pc.retryInitial, Max: pc.retryMax},
		logger:           logger,
		pollCallbacks:    pc.pollCallbacks,
		metrics:          recorder,
		registry:         pc.registry,
	}, nil
}

// parseBaseURL validates rawURL and guarantees a trailing slash so that
// relative collection paths resolve beneath it.
func parseBaseURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("base URL must include a host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// CollectionURL returns the absolute URL job requests are posted to.
func (p *JobPoller) CollectionURL() string {
	return p.collectionURL
}

// PollInterval returns the default delay before each status query.
func (p *JobPoller) PollInterval() time.Duration {
	return p.pollInterval
}

// MaxWait returns the default maximum wait. Zero means unbounded.
func (p *JobPoller) MaxWait() time.Duration {
	return p.maxWait
}

// MaxResponseSize returns the largest response body the poller accepts.
func (p *JobPoller) MaxResponseSize() int64 {
	return p.maxResponseSize
}

// Close releases idle connections held by the poller.
// Safe to call multiple times. The poller remains usable afterwards.
func (p *JobPoller) Close() {
	p.client.Close()
}

// Submit sends one job creation request and returns the handle assigned by
// the leader.
//
// Submit fails with a [*TransportError] if the request cannot be made or the
// leader answers with a non-success status, and with a [*ProtocolError] if
// the response does not contain a job id. A failed submission is never
// retried. If ctx is cancelled, its error is returned.
func (p *JobPoller) Submit(ctx context.Context, req JobRequest) (Handle, error) {
	if req.Type() == "" {
		return "", errors.New("job request is not initialised")
	}

	body, err := restapi.EncodeCreate(req.Type(), req.details)
	if err != nil {
		return "", fmt.Errorf("failed to encode job request: %w", err)
	}

	resp := p.client.Do(ctx, restapi.Request{
		Method:      http.MethodPost,
		URL:         p.collectionURL,
		Headers:     p.requestHeaders(),
		Body:        body,
		Timeout:     p.requestTimeout,
		MaxBodySize: p.maxResponseSize,
	})
	if resp.Error != nil && ctx.Err() != nil {
		return "", fmt.Errorf("submit %s: %w", req.Type(), ctx.Err())
	}
	if err := checkResponse(opSubmit, p.collectionURL, resp); err != nil {
		p.metrics.Submitted(metrics.SubmitRejected)
		p.logger.Warn("job submission failed",
			"request_type", req.Type(),
			"status_code", resp.StatusCode,
			"error", err.Error(),
		)
		return "", err
	}

	id, err := restapi.DecodeCreated(resp.Body)
	if err != nil {
		p.metrics.Submitted(metrics.SubmitRejected)
		return "", &ProtocolError{Op: opSubmit, URL: p.collectionURL, Cause: err}
	}

	p.metrics.Submitted(metrics.SubmitAccepted)
	p.logger.Info("job submitted",
		"request_type", req.Type(),
		"handle", id,
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return Handle(id), nil
}

// Status performs a single status query for handle.
//
// A status response with a non-empty error field is reported as
// [StateFailed] regardless of its completed flag. Errors are the same as for
// [JobPoller.Submit]; a remote job failure is not an error here.
func (p *JobPoller) Status(ctx context.Context, handle Handle) (JobStatus, error) {
	st, _, err := p.query(ctx, handle)
	return st, err
}

// AwaitCompletion polls handle at a fixed cadence until the job is terminal.
//
// Each iteration first waits the poll interval, then queries the status.
// On [StateCompleted] the result payload is returned exactly as received.
// On [StateFailed] a [*JobFailedError] carrying the remote message is
// returned. If a max wait is configured and elapses first, a [*TimeoutError]
// is returned; the max wait also cuts short a status query still in flight.
//
// Transport failures end the wait with a [*TransportError] unless transport
// retries are configured; protocol errors always end it. Cancelling ctx
// abandons the wait between ticks and returns the context's error. No
// cancellation is sent to the leader.
func (p *JobPoller) AwaitCompletion(ctx context.Context, handle Handle, opts ...AwaitOption) (JobResult, error) {
	if handle == "" {
		return JobResult{}, errors.New("handle cannot be empty")
	}

	ac := awaitConfig{interval: p.pollInterval, maxWait: p.maxWait}
	for _, opt := range opts {
		if err := opt(&ac); err != nil {
			return JobResult{}, err
		}
	}

	start := time.Now()

	// The max wait also bounds in-flight status queries.
	waitCtx := ctx
	if ac.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(ctx, start.Add(ac.maxWait))
		defer cancel()
	}

	var (
		polls    int
		failures int // consecutive transport failures
		delay    = ac.interval
	)
	stopped := func() (JobResult, error) {
		if ctx.Err() != nil {
			p.finish(handle, PhaseCancelled, start, ctx.Err())
			return JobResult{}, fmt.Errorf("await job %s: %w", handle, ctx.Err())
		}
		timeoutErr := &TimeoutError{Handle: handle, MaxWait: ac.maxWait, Polls: polls}
		p.finish(handle, PhaseTimedOut, start, timeoutErr)
		return JobResult{}, timeoutErr
	}
	for {
		if err := sleep(waitCtx, delay); err != nil {
			return stopped()
		}

		polls++
		st, latency, err := p.query(waitCtx, handle)
		p.notify(PollEvent{
			Handle:  handle,
			Attempt: polls,
			Status:  st,
			Err:     err,
			Latency: latency,
		}, ac.onPoll)

		if err != nil {
			if waitCtx.Err() != nil {
				return stopped()
			}
			if errors.Is(err, ErrTransport) && failures < p.transportRetries {
				failures++
				delay = backoff.Exponential(failures, &p.retryBackoff)
				p.metrics.Retried()
				p.logger.Warn("status query failed, retrying",
					"handle", handle.String(),
					"retry", failures,
					"max_retries", p.transportRetries,
					"delay", delay.String(),
					"error", err.Error(),
				)
				continue
			}
			p.finish(handle, Classify(err), start, err)
			return JobResult{}, err
		}

		failures = 0
		delay = ac.interval

		switch st.State {
		case StateCompleted:
			p.finish(handle, PhaseSucceeded, start, nil)
			return JobResult{
				Handle:  handle,
				Payload: st.Result,
				Polls:   polls,
				Elapsed: time.Since(start),
			}, nil
		case StateFailed:
			failErr := &JobFailedError{Handle: handle, Message: st.Error}
			p.finish(handle, PhaseFailed, start, failErr)
			return JobResult{}, failErr
		}

		p.logger.Debug("job pending",
			"handle", handle.String(),
			"attempt", polls,
			"latency_ms", latency.Milliseconds(),
		)
	}
}

// Run submits req and waits for its completion. It is equivalent to
// [JobPoller.Submit] followed by [JobPoller.AwaitCompletion].
func (p *JobPoller) Run(ctx context.Context, req JobRequest, opts ...AwaitOption) (JobResult, error) {
	handle, err := p.Submit(ctx, req)
	if err != nil {
		return JobResult{}, err
	}
	return p.AwaitCompletion(ctx, handle, opts...)
}

// query performs one status request and interprets the response.
func (p *JobPoller) query(ctx context.Context, handle Handle) (JobStatus, time.Duration, error) {
	if handle == "" {
		return JobStatus{}, 0, errors.New("handle cannot be empty")
	}

	statusURL := p.collectionURL + url.PathEscape(string(handle))
	resp := p.client.Do(ctx, restapi.Request{
		Method:      http.MethodGet,
		URL:         statusURL,
		Headers:     p.requestHeaders(),
		Timeout:     p.requestTimeout,
		MaxBodySize: p.maxResponseSize,
	})
	if resp.Error != nil && ctx.Err() != nil {
		return JobStatus{}, resp.Latency, ctx.Err()
	}
	if err := checkResponse(opStatus, statusURL, resp); err != nil {
		return JobStatus{}, resp.Latency, err
	}

	attrs, err := restapi.DecodeStatus(resp.Body)
	if err != nil {
		return JobStatus{}, resp.Latency, &ProtocolError{Op: opStatus, URL: statusURL, Cause: err}
	}

	st := interpretStatus(handle, attrs, time.Now())
	p.metrics.Polled(st.State.String())
	return st, resp.Latency, nil
}

// interpretStatus maps status attributes to a [JobStatus]. A non-empty error
// wins over the completed flag.
func interpretStatus(handle Handle, attrs restapi.StatusAttributes, checkedAt time.Time) JobStatus {
	st := JobStatus{Handle: handle, CheckedAt: checkedAt}
	switch {
	case attrs.Error != "":
		st.State = StateFailed
		st.Error = attrs.Error
	case attrs.Completed:
		st.State = StateCompleted
		st.Result = attrs.Result
	default:
		st.State = StatePending
	}
	return st
}

// checkResponse converts a failed or non-2xx response into a [*TransportError].
// An oversized body is a [*ProtocolError].
func checkResponse(op, requestURL string, resp restapi.Response) error {
	if errors.Is(resp.Error, restapi.ErrResponseTooLarge) {
		return &ProtocolError{Op: op, URL: requestURL, Cause: resp.Error}
	}
	if resp.Error != nil {
		return &TransportError{Op: op, URL: requestURL, Cause: resp.Error}
	}
	if !resp.OK() {
		return &TransportError{
			Op:         op,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Message:    restapi.DecodeErrors(resp.Body),
		}
	}
	return nil
}

// requestHeaders returns the headers sent with every request.
func (p *JobPoller) requestHeaders() map[string]string {
	h := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		h[k] = v
	}
	h[p.tokenHeader] = p.token
	return h
}

// notify invokes poll callbacks with panic recovery.
func (p *JobPoller) notify(ev PollEvent, perCall []func(PollEvent)) {
	for _, cb := range p.pollCallbacks {
		invokeSafe(p.logger, "poll callback", ev.Handle.String(), func() { cb(ev) })
	}
	for _, cb := range perCall {
		invokeSafe(p.logger, "poll callback", ev.Handle.String(), func() { cb(ev) })
	}
}

// finish records the outcome of an await.
func (p *JobPoller) finish(handle Handle, phase Phase, start time.Time, err error) {
	waited := time.Since(start)
	p.metrics.Finished(phase.String(), waited)

	attrs := []any{
		"handle", handle.String(),
		"outcome", phase.String(),
		"waited", waited.Round(time.Millisecond).String(),
	}
	if err != nil {
		p.logger.Warn("job wait ended", append(attrs, "error", err.Error())...)
		return
	}
	p.logger.Info("job completed", attrs...)
}

// sleep waits for d, returning early with ctx's error.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
