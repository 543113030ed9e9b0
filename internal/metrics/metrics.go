// Package metrics records job poller activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "spjobs"

	submissionsTotal      = "submissions_total"
	pollsTotal            = "polls_total"
	transportRetriesTotal = "transport_retries_total"
	jobsTotal             = "jobs_total"
	jobWaitSeconds        = "job_wait_seconds"

	// Labels
	resultLabel  = "result"
	stateLabel   = "state"
	outcomeLabel = "outcome"
)

// Submission results.
const (
	SubmitAccepted = "accepted"
	SubmitRejected = "rejected"
)

// Recorder owns the poller's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	submissions *prometheus.CounterVec
	polls       *prometheus.CounterVec
	retries     prometheus.Counter
	jobs        *prometheus.CounterVec
	wait        prometheus.Histogram
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, errors.New("metrics registerer cannot be nil")
	}

	r := &Recorder{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      submissionsTotal,
				Help:      "number of job creation requests by result",
			},
			[]string{resultLabel},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      pollsTotal,
				Help:      "number of job status queries by observed state",
			},
			[]string{stateLabel},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      transportRetriesTotal,
				Help:      "number of status queries retried after a transport failure",
			},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      jobsTotal,
				Help:      "number of awaited jobs by outcome",
			},
			[]string{outcomeLabel},
		),
		wait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      jobWaitSeconds,
				Help:      "time spent awaiting job completion",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
	}

	for _, c := range []prometheus.Collector{r.submissions, r.polls, r.retries, r.jobs, r.wait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Submitted counts a creation request.
func (r *Recorder) Submitted(result string) {
	if r == nil {
		return
	}
	r.submissions.With(prometheus.Labels{resultLabel: result}).Inc()
}

// Polled counts a status query that observed state.
func (r *Recorder) Polled(state string) {
	if r == nil {
		return
	}
	r.polls.With(prometheus.Labels{stateLabel: state}).Inc()
}

// Retried counts a status query retried after a transport failure.
func (r *Recorder) Retried() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// Finished records the outcome of an await and how long it took.
func (r *Recorder) Finished(outcome string, waited time.Duration) {
	if r == nil {
		return
	}
	r.jobs.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
	r.wait.Observe(waited.Seconds())
}
