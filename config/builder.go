package config

import (
	"crypto/x509"
	"fmt"
	"os"
	"sort"

	"github.com/jpalmerr/spjobs"
)

// BuildPoller creates a [spjobs.JobPoller] from the API and poll sections.
//
// extra options are applied after those derived from the file, so callers can
// add a logger or metrics registry.
func BuildPoller(cfg *Config, extra ...spjobs.Option) (*spjobs.JobPoller, error) {
	opts := []spjobs.Option{
		spjobs.WithPollInterval(cfg.Poll.Interval.Duration()),
		spjobs.WithMaxWait(cfg.Poll.MaxWait.Duration()),
		spjobs.WithTransportRetries(cfg.Poll.TransportRetries),
	}

	if cfg.API.TokenHeader != "" {
		opts = append(opts, spjobs.WithTokenHeader(cfg.API.TokenHeader))
	}
	if cfg.API.Collection != "" {
		opts = append(opts, spjobs.WithCollection(cfg.API.Collection))
	}
	if cfg.API.Timeout != 0 {
		opts = append(opts, spjobs.WithRequestTimeout(cfg.API.Timeout.Duration()))
	}
	if cfg.API.MaxResponseSize > 0 {
		opts = append(opts, spjobs.WithMaxResponseSize(cfg.API.MaxResponseSize))
	}
	if len(cfg.API.Headers) > 0 {
		opts = append(opts, spjobs.WithHeaders(mapToKeyValuePairs(cfg.API.Headers)...))
	}
	if cfg.API.CAFile != "" {
		pool, err := loadCertPool(cfg.API.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, spjobs.WithRootCAs(pool))
	}

	opts = append(opts, extra...)
	return spjobs.New(spjobs.Config{BaseURL: cfg.API.BaseURL, Token: cfg.API.Token}, opts...)
}

// loadCertPool reads a PEM bundle into a certificate pool.
func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read api.ca_file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("api.ca_file %s: no PEM certificates found", path)
	}
	return pool, nil
}

// BuildJobs converts parsed configuration into SDK Job objects.
//
// It processes both direct jobs and matrices, returning a combined slice.
// Matrix dimensions are expanded via cartesian product.
func BuildJobs(cfg *Config) ([]spjobs.Job, error) {
	var jobs []spjobs.Job

	for _, jc := range cfg.Jobs {
		job, err := buildJob(jc)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", jc.Name, err)
		}
		jobs = append(jobs, job)
	}

	for _, mc := range cfg.Matrices {
		matrixJobs, err := buildMatrixJobs(mc)
		if err != nil {
			return nil, fmt.Errorf("matrix %q: %w", mc.Name, err)
		}
		jobs = append(jobs, matrixJobs...)
	}

	return jobs, nil
}

// buildJob converts a single JobConfig to an SDK Job.
func buildJob(jc JobConfig) (spjobs.Job, error) {
	req, err := spjobs.NewJobRequest(jc.Type, spjobs.WithDetails(jc.Details))
	if err != nil {
		return spjobs.Job{}, err
	}

	var opts []spjobs.JobOption
	if len(jc.Labels) > 0 {
		opts = append(opts, spjobs.WithLabels(mapToKeyValuePairs(jc.Labels)...))
	}
	return spjobs.NewJob(jc.Name, req, opts...)
}

// buildMatrixJobs expands a MatrixConfig into multiple jobs.
func buildMatrixJobs(mc MatrixConfig) ([]spjobs.Job, error) {
	templates := make(map[string]string)
	static := make(map[string]any)
	for k, v := range mc.Details {
		if s, ok := v.(string); ok {
			templates[k] = s
		} else {
			static[k] = v
		}
	}

	opts := []spjobs.MatrixOption{
		spjobs.WithDetailTemplates(templates),
		spjobs.WithDimensions(mc.Dimensions),
	}
	if len(static) > 0 {
		opts = append(opts, spjobs.WithMatrixDetails(static))
	}
	if len(mc.Labels) > 0 {
		opts = append(opts, spjobs.WithMatrixLabels(mapToKeyValuePairs(mc.Labels)...))
	}
	return spjobs.NewJobMatrix(mc.Name, mc.Type, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
