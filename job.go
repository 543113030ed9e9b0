package spjobs

import "errors"

// Job is a named [JobRequest] run as part of a [Batch].
//
// Job is immutable after creation via [NewJob]. The name identifies the job
// in logs, outcomes and the status API; it must be unique within a Batch.
type Job struct {
	name    string
	request JobRequest
	labels  map[string]string
}

// Name returns the job's display name.
func (j Job) Name() string {
	return j.name
}

// Request returns the job's request payload.
func (j Job) Request() JobRequest {
	return j.request
}

// Labels returns a copy of the job's labels.
// Returns nil if no labels are set.
func (j Job) Labels() map[string]string {
	return copyMap(j.labels)
}

// jobConfig holds mutable state during job construction.
type jobConfig struct {
	labels map[string]string
}

// JobOption configures a [Job] during construction.
type JobOption func(*jobConfig) error

// WithLabels adds metadata labels to the job.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
//
// Example:
//
//	job, err := spjobs.NewJob("block zone", req,
//	    spjobs.WithLabels("team", "netops", "leader", "sp1"),
//	)
func WithLabels(keyValues ...string) JobOption {
	return func(cfg *jobConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// NewJob creates a [Job] with the given name, request and options.
//
// Returns an error if the name is empty or the request was not created with
// [NewJobRequest].
func NewJob(name string, req JobRequest, opts ...JobOption) (Job, error) {
	if name == "" {
		return Job{}, errors.New("job name cannot be empty")
	}
	if req.Type() == "" {
		return Job{}, errors.New("job request is not initialised")
	}

	cfg := &jobConfig{labels: make(map[string]string)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Job{}, err
		}
	}

	return Job{
		name:    name,
		request: req,
		labels:  cfg.labels,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
