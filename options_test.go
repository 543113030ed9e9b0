package spjobs

import (
	"crypto/x509"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newOptionConfig() *pollerConfig {
	return &pollerConfig{headers: make(map[string]string)}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero poll interval", WithPollInterval(0)},
		{"negative poll interval", WithPollInterval(-time.Second)},
		{"negative max wait", WithMaxWait(-time.Second)},
		{"zero request timeout", WithRequestTimeout(0)},
		{"zero max response size", WithMaxResponseSize(0)},
		{"negative retries", WithTransportRetries(-1)},
		{"zero backoff", WithRetryBackoff(0, time.Second)},
		{"inverted backoff", WithRetryBackoff(2*time.Second, time.Second)},
		{"empty collection", WithCollection("  ")},
		{"absolute collection", WithCollection("/api/sp/job-requests/")},
		{"collection with query", WithCollection("job-requests/?x=1")},
		{"empty token header", WithTokenHeader("")},
		{"odd headers", WithHeaders("X-Only")},
		{"nil http client", WithHTTPClient(nil)},
		{"nil root CAs", WithRootCAs(nil)},
		{"nil logger", WithLogger(nil)},
		{"nil registry", WithMetricsRegistry(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opt(newOptionConfig()); err == nil {
				t.Error("option expected error, got nil")
			}
		})
	}
}

func TestOptions_Valid(t *testing.T) {
	cfg := newOptionConfig()
	opts := []Option{
		WithPollInterval(2 * time.Second),
		WithMaxWait(time.Minute),
		WithRequestTimeout(3 * time.Second),
		WithMaxResponseSize(8 << 20),
		WithTransportRetries(4),
		WithRetryBackoff(100*time.Millisecond, time.Second),
		WithCollection("tms_filter_list_requests"),
		WithTokenHeader("X-Api-Token"),
		WithHeaders("X-A", "1", "X-B", "2"),
		WithHTTPClient(&http.Client{}),
		WithRootCAs(x509.NewCertPool()),
		WithLogger(testLogger()),
		WithPollCallback(nil),
		WithPollCallback(func(PollEvent) {}),
		WithMetricsRegistry(prometheus.NewRegistry()),
	}
	for i, opt := range opts {
		if err := opt(cfg); err != nil {
			t.Fatalf("option %d error = %v", i, err)
		}
	}

	if cfg.pollInterval != 2*time.Second {
		t.Errorf("pollInterval = %v", cfg.pollInterval)
	}
	if cfg.maxWait != time.Minute {
		t.Errorf("maxWait = %v", cfg.maxWait)
	}
	if cfg.maxResponseSize != 8<<20 {
		t.Errorf("maxResponseSize = %d", cfg.maxResponseSize)
	}
	if cfg.transportRetries != 4 {
		t.Errorf("transportRetries = %d", cfg.transportRetries)
	}
	if cfg.collection != "tms_filter_list_requests/" {
		t.Errorf("collection = %q", cfg.collection)
	}
	if cfg.headers["X-A"] != "1" || cfg.headers["X-B"] != "2" {
		t.Errorf("headers = %v", cfg.headers)
	}
	if len(cfg.pollCallbacks) != 1 {
		t.Errorf("len(pollCallbacks) = %d, want 1 (nil ignored)", len(cfg.pollCallbacks))
	}
}

func TestMaxWait_ZeroIsUnbounded(t *testing.T) {
	cfg := newOptionConfig()
	if err := WithMaxWait(0)(cfg); err != nil {
		t.Fatalf("WithMaxWait(0) error = %v", err)
	}
	if cfg.maxWait != 0 {
		t.Errorf("maxWait = %v, want 0", cfg.maxWait)
	}
}

func TestAwaitOptions(t *testing.T) {
	ac := awaitConfig{interval: time.Second}
	for _, opt := range []AwaitOption{
		PollInterval(50 * time.Millisecond),
		MaxWait(time.Second),
		OnPoll(nil),
		OnPoll(func(PollEvent) {}),
	} {
		if err := opt(&ac); err != nil {
			t.Fatalf("AwaitOption error = %v", err)
		}
	}
	if ac.interval != 50*time.Millisecond || ac.maxWait != time.Second || len(ac.onPoll) != 1 {
		t.Errorf("awaitConfig = %+v", ac)
	}
}

func TestNew_MetricsRegistryConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{BaseURL: "https://leader.example.com/api/sp/", Token: "t"}

	if _, err := New(cfg, WithMetricsRegistry(reg)); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(cfg, WithMetricsRegistry(reg)); err == nil {
		t.Error("second New() with the same registry expected error, got nil")
	}
}
