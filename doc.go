// Package spjobs submits long-running jobs to an SP leader's REST API and
// waits for them to finish.
//
// A job is created with a single POST to a job-request collection; the
// leader answers with an id. The job's status resource is then polled at a
// fixed interval until it reports completion, in which case its result is
// returned, or an error, in which case the error text is returned
// unmodified. The package is SDK-first: the spjobs binary under cmd/spjobs
// is a thin layer over the same API.
//
// # Quick Start
//
// Generate a DNS filter list from a zone transfer:
//
//	p, err := spjobs.New(
//	    spjobs.Config{BaseURL: "https://leader.example.com/api/sp/", Token: token},
//	    spjobs.WithCollection("tms_filter_list_requests/"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	req, _ := spjobs.NewDNSFilterListRequest("ns.example.com", "zone-to-block.example.com")
//	result, err := p.Run(ctx, req)
//	if err != nil {
//	    return err
//	}
//	zones, err := result.Strings()
//
// [JobPoller.Run] is [JobPoller.Submit] followed by
// [JobPoller.AwaitCompletion]. Callers that need the handle before waiting,
// or want to poll a job created elsewhere, use the two calls directly.
//
// # Waiting
//
// The poller sleeps for the poll interval (1.5s by default) before every
// status query, including the first. Waiting is unbounded unless a maximum
// wait is configured, and stops early when the context is cancelled:
//
//	result, err := p.AwaitCompletion(ctx, handle,
//	    spjobs.MaxWait(10*time.Minute),
//	    spjobs.OnPoll(func(ev spjobs.PollEvent) {
//	        log.Printf("poll %d: %s", ev.Attempt, ev.Status.State)
//	    }),
//	)
//
// # Errors
//
// Every failure is one of four kinds, distinguishable with errors.Is or
// errors.As:
//
//   - [ErrTransport] / [TransportError]: the request failed or the leader
//     answered with a non-success status
//   - [ErrProtocol] / [ProtocolError]: the response body was not the
//     expected document
//   - [ErrJobFailed] / [JobFailedError]: the leader reported the job failed
//   - [ErrTimeout] / [TimeoutError]: the maximum wait elapsed
//
// Context cancellation is returned as the context's own error. [Classify]
// maps any of these to a terminal [Phase].
//
// # Batches
//
// [Batch] runs many named jobs with bounded concurrency. [NewJobMatrix]
// expands detail templates over dimensions into one job per combination:
//
//	jobs, _ := spjobs.NewJobMatrix("filter list", spjobs.RequestTypeDNSFilterList,
//	    spjobs.WithDetailTemplates(map[string]string{"zone": "{{.zone}}", "server": "{{.server}}"}),
//	    spjobs.WithDimensions(map[string][]string{
//	        "server": {"ns1.example.com"},
//	        "zone":   {"a.example.com", "b.example.com"},
//	    }),
//	)
//	batch, _ := spjobs.NewBatch(p, spjobs.WithJobs(jobs...))
//	outcomes := batch.Run(ctx)
//
// [Batch.Start] additionally serves job state over HTTP (JSON, Server-Sent
// Events and, with [WithMetricsRegistry], Prometheus metrics).
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/restapi: HTTP client and JSON:API document codec
//   - internal/backoff: exponential delays between transport retries
//   - internal/metrics: Prometheus collectors for submissions and polls
//   - internal/store: in-memory job records with pub/sub for live updates
//   - internal/server: status API with REST and Server-Sent Events
//   - internal/fakesp: scripted in-process leader used by tests and examples
package spjobs
