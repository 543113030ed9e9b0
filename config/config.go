// Package config provides YAML configuration parsing for spjobs.
//
// This package enables running batches of jobs from the spjobs binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	api:
//	  base_url: https://leader.example.com/api/sp/
//	  token: ${SP_API_TOKEN}
//	  collection: tms_filter_list_requests/
//
//	poll:
//	  interval: 1.5s
//	  max_wait: 10m
//
//	jobs:
//	  - name: block zone
//	    details:
//	      server: ns.example.com
//	      zone: zone-to-block.example.com
//
//	matrices:
//	  - name: zones
//	    details:
//	      server: "{{.server}}"
//	      zone: "{{.zone}}"
//	    dimensions:
//	      server: [ns1.example.com]
//	      zone: [a.example.com, b.example.com]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/spjobs"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = 4
	defaultPollInterval   = 1500 * time.Millisecond

	// minPollInterval keeps a misconfigured file from hammering the leader.
	minPollInterval = 100 * time.Millisecond
)

// Config is the root configuration structure for spjobs.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// API describes the SP leader and how to authenticate with it.
	API APIConfig `yaml:"api"`

	// Poll controls the await loop.
	Poll PollConfig `yaml:"poll"`

	// Port is the HTTP port of the status API. Defaults to 8080.
	Port int `yaml:"port"`

	// MaxConcurrency is the number of jobs run at once. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Jobs defines individual jobs.
	Jobs []JobConfig `yaml:"jobs"`

	// Matrices defines job matrices that expand via cartesian product.
	Matrices []MatrixConfig `yaml:"matrices"`
}

// APIConfig describes the SP leader.
type APIConfig struct {
	// BaseURL is the root of the REST API, e.g. https://leader/api/sp/.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Token is the API token. Supports environment variable substitution.
	Token string `yaml:"token"`

	// TokenHeader is the header carrying the token. Defaults to X-Arbux-APIToken.
	TokenHeader string `yaml:"token_header"`

	// Collection is the job-request collection path relative to BaseURL.
	Collection string `yaml:"collection"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// MaxResponseSize bounds a response body in bytes. Defaults to 64MB.
	MaxResponseSize int64 `yaml:"max_response_size"`

	// CAFile is a PEM bundle used to verify the leader's certificate.
	CAFile string `yaml:"ca_file"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// PollConfig controls the await loop.
type PollConfig struct {
	// Interval is the fixed delay before each status query. Defaults to 1.5s.
	Interval Duration `yaml:"interval"`

	// MaxWait bounds each job's wait. Zero waits without limit.
	MaxWait Duration `yaml:"max_wait"`

	// TransportRetries is the number of consecutive transport failures
	// tolerated while polling. Zero makes every failure fatal.
	TransportRetries int `yaml:"transport_retries"`
}

// JobConfig defines a single job.
type JobConfig struct {
	// Name is the job's display name; unique across the whole file.
	Name string `yaml:"name"`

	// Type is the request type. Defaults to generate_dns_filter_list.
	Type string `yaml:"type"`

	// Details are sent as the request details. String values support
	// environment variable substitution.
	Details map[string]any `yaml:"details"`

	// Labels are metadata key-value pairs for grouping/filtering.
	Labels map[string]string `yaml:"labels"`
}

// MatrixConfig defines a job matrix that expands via cartesian product.
//
// For example, with dimensions {server: [ns1, ns2], zone: [a, b]}, the matrix
// expands to 4 jobs: ns1/a, ns1/b, ns2/a, ns2/b.
type MatrixConfig struct {
	// Name is the base name for generated jobs.
	Name string `yaml:"name"`

	// Type is the request type. Defaults to generate_dns_filter_list.
	Type string `yaml:"type"`

	// Details are the request details. String values are Go templates with
	// dimension keys as variables: {{.zone}}. Other values are sent unchanged.
	Details map[string]any `yaml:"details"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Labels are additional labels applied to all generated jobs.
	Labels map[string]string `yaml:"labels"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the base URL, token, header values and
// string detail values. Defaults are applied for Port (8080), MaxConcurrency
// (4), Poll.Interval (1.5s) and job types (generate_dns_filter_list).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if err := c.API.expandAndValidate(); err != nil {
		return err
	}

	if c.Poll.Interval.Duration() < minPollInterval {
		return fmt.Errorf("poll.interval must be at least %s, got %s", minPollInterval, c.Poll.Interval.Duration())
	}
	if c.Poll.MaxWait.Duration() < 0 {
		return fmt.Errorf("poll.max_wait cannot be negative, got %s", c.Poll.MaxWait.Duration())
	}
	if c.Poll.TransportRetries < 0 {
		return fmt.Errorf("poll.transport_retries cannot be negative, got %d", c.Poll.TransportRetries)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}

	names := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]

		if j.Name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if _, exists := names[j.Name]; exists {
			return fmt.Errorf("jobs[%d] (%s): duplicate job name", i, j.Name)
		}
		names[j.Name] = struct{}{}

		if j.Type == "" {
			j.Type = spjobs.RequestTypeDNSFilterList
		}

		for k, v := range j.Details {
			s, ok := v.(string)
			if !ok {
				continue
			}
			expanded, err := expandEnvVars(s)
			if err != nil {
				return fmt.Errorf("jobs[%d] (%s): details[%s]: %w", i, j.Name, k, err)
			}
			j.Details[k] = expanded
		}
	}

	for i := range c.Matrices {
		m := &c.Matrices[i]

		if m.Name == "" {
			return fmt.Errorf("matrices[%d]: name is required", i)
		}
		if m.Type == "" {
			m.Type = spjobs.RequestTypeDNSFilterList
		}

		templates := 0
		for k, v := range m.Details {
			s, ok := v.(string)
			if !ok {
				continue
			}
			templates++
			expanded, err := expandEnvVars(s)
			if err != nil {
				return fmt.Errorf("matrices[%d] (%s): details[%s]: %w", i, m.Name, k, err)
			}
			// fail fast before the SDK tries to use an invalid template
			if _, err := template.New(k).Parse(expanded); err != nil {
				return fmt.Errorf("matrices[%d] (%s): details[%s]: invalid template: %w", i, m.Name, k, err)
			}
			m.Details[k] = expanded
		}
		if templates == 0 {
			return fmt.Errorf("matrices[%d] (%s): at least one string detail template is required", i, m.Name)
		}

		if len(m.Dimensions) == 0 {
			return fmt.Errorf("matrices[%d] (%s): at least one dimension is required", i, m.Name)
		}
		for dimName, dimValues := range m.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("matrices[%d] (%s): dimension %q has no values", i, m.Name, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("matrices[%d] (%s): dimension %q has duplicate value %q", i, m.Name, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}
	}

	if len(c.Jobs) == 0 && len(c.Matrices) == 0 {
		return errors.New("at least one job or matrix must be defined")
	}

	return nil
}

// expandAndValidate expands environment variables in the API section and
// validates it.
func (a *APIConfig) expandAndValidate() error {
	if a.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	expanded, err := expandEnvVars(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	a.BaseURL = expanded

	parsedURL, err := url.Parse(a.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api.base_url: scheme must be http or https, got %q", parsedURL.Scheme)
	}

	token, err := expandEnvVars(a.Token)
	if err != nil {
		return fmt.Errorf("api.token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("api.token is required")
	}
	a.Token = token

	if strings.HasPrefix(a.Collection, "/") {
		return fmt.Errorf("api.collection must be relative to api.base_url, got %q", a.Collection)
	}

	if a.Timeout.Duration() < 0 {
		return fmt.Errorf("api.timeout cannot be negative, got %s", a.Timeout.Duration())
	}
	if a.MaxResponseSize < 0 {
		return fmt.Errorf("api.max_response_size cannot be negative, got %d", a.MaxResponseSize)
	}

	for k, v := range a.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("api.headers[%s]: %w", k, err)
		}
		a.Headers[k] = expanded
	}

	return nil
}
