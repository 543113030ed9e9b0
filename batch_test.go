package spjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/spjobs/internal/fakesp"
	"github.com/jpalmerr/spjobs/internal/store"
)

func mustJob(t *testing.T, name, zone string, opts ...JobOption) Job {
	t.Helper()
	req, err := NewDNSFilterListRequest("ns.example.com", zone)
	if err != nil {
		t.Fatalf("NewDNSFilterListRequest() error = %v", err)
	}
	job, err := NewJob(name, req, opts...)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return job
}

// zoneScript completes every job with its zone, except zones named
// "bad.example.com", which fail.
func zoneScript(c fakesp.Create) []fakesp.Step {
	zone, _ := c.Details["zone"].(string)
	if zone == "bad.example.com" {
		return []fakesp.Step{fakesp.Pending(), fakesp.Failed("zone transfer refused")}
	}
	return []fakesp.Step{fakesp.Pending(), fakesp.Done([]string{zone})}
}

func TestNewBatch_Validation(t *testing.T) {
	p := newTestPoller(t, fakesp.New())
	job := mustJob(t, "a", "a.example.com")

	tests := []struct {
		name    string
		poller  *JobPoller
		opts    []BatchOption
		wantErr string
	}{
		{"nil poller", nil, []BatchOption{WithJob(job)}, "job poller cannot be nil"},
		{"no jobs", p, nil, "at least one job is required"},
		{"duplicate names", p, []BatchOption{WithJobs(job, job)}, "duplicate job name"},
		{"zero job", p, []BatchOption{WithJob(Job{})}, "job is not initialised"},
		{"zero concurrency", p, []BatchOption{WithJob(job), WithMaxConcurrency(0)}, "max concurrency"},
		{"bad port", p, []BatchOption{WithJob(job), WithPort(70000)}, "port must be between"},
		{"nil logger", p, []BatchOption{WithJob(job), WithBatchLogger(nil)}, "logger cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBatch(tt.poller, tt.opts...)
			if err == nil {
				t.Fatal("NewBatch() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewBatch_Defaults(t *testing.T) {
	p := newTestPoller(t, fakesp.New())
	b, err := NewBatch(p, WithJob(mustJob(t, "a", "a.example.com")))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	if b.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", b.Port())
	}
	if b.MaxConcurrency() != 4 {
		t.Errorf("MaxConcurrency() = %d, want 4", b.MaxConcurrency())
	}
	if len(b.Jobs()) != 1 {
		t.Errorf("len(Jobs()) = %d, want 1", len(b.Jobs()))
	}
}

func TestBatch_RunOutcomesInJobOrder(t *testing.T) {
	fake := fakesp.New(fakesp.WithScript(zoneScript))
	p := newTestPoller(t, fake)

	jobs := []Job{
		mustJob(t, "c", "c.example.com", WithLabels("team", "netops")),
		mustJob(t, "bad", "bad.example.com"),
		mustJob(t, "a", "a.example.com"),
	}
	b, err := NewBatch(p, WithJobs(jobs...), WithMaxConcurrency(2), WithBatchLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	outcomes := b.Run(context.Background())
	if len(outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(outcomes))
	}

	for i, want := range []string{"c", "bad", "a"} {
		if outcomes[i].JobName != want {
			t.Errorf("outcomes[%d].JobName = %q, want %q", i, outcomes[i].JobName, want)
		}
	}

	c := outcomes[0]
	if c.Phase != PhaseSucceeded || c.Err != nil {
		t.Errorf("c: Phase = %q, Err = %v", c.Phase, c.Err)
	}
	if got, _ := c.Result.Strings(); len(got) != 1 || got[0] != "c.example.com" {
		t.Errorf("c: result = %s", c.Result.Payload)
	}
	if c.Labels["team"] != "netops" {
		t.Errorf("c: Labels = %v", c.Labels)
	}
	if c.Handle == "" {
		t.Error("c: Handle is empty")
	}
	if !c.FinishedAt.After(c.StartedAt) {
		t.Error("c: FinishedAt should be after StartedAt")
	}

	bad := outcomes[1]
	if bad.Phase != PhaseFailed {
		t.Errorf("bad: Phase = %q, want failed", bad.Phase)
	}
	var failed *JobFailedError
	if !errors.As(bad.Err, &failed) || failed.Message != "zone transfer refused" {
		t.Errorf("bad: Err = %v", bad.Err)
	}
}

func TestBatch_RunSubmissionFailure(t *testing.T) {
	fake := fakesp.New(fakesp.WithCreateResponse(http.StatusForbidden, `{"errors":[{"title":"Forbidden"}]}`))
	p := newTestPoller(t, fake)

	b, err := NewBatch(p, WithJob(mustJob(t, "a", "a.example.com")))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	outcomes := b.Run(context.Background())
	if outcomes[0].Phase != PhaseTransportFailed {
		t.Errorf("Phase = %q, want transport_failed", outcomes[0].Phase)
	}
	if outcomes[0].Handle != "" {
		t.Errorf("Handle = %q, want empty", outcomes[0].Handle)
	}
}

func TestBatch_RespectsMaxConcurrency(t *testing.T) {
	fake := fakesp.New(fakesp.WithSteps(fakesp.Pending(), fakesp.Pending(), fakesp.Done("ok")))
	p := newTestPoller(t, fake)

	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = mustJob(t, fmt.Sprintf("job-%d", i), fmt.Sprintf("z%d.example.com", i))
	}

	b, err := NewBatch(p,
		WithJobs(jobs...),
		WithMaxConcurrency(2),
		WithBatchLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	// a job is in flight from submission until its terminal record
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	st := &observingStore{Store: store.NewMemoryStore(), onUpdate: func(r store.JobRecord) {
		mu.Lock()
		defer mu.Unlock()
		switch Phase(r.Phase) {
		case PhaseSubmitted:
			inFlight++
			peak = max(peak, inFlight)
		case PhaseSucceeded, PhaseFailed:
			inFlight--
		}
	}}

	outcomes := b.run(context.Background(), st)
	for _, o := range outcomes {
		if o.Phase != PhaseSucceeded {
			t.Errorf("%s: Phase = %q, Err = %v", o.JobName, o.Phase, o.Err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if peak == 0 {
		t.Error("no job was observed in flight")
	}
}

func TestBatch_RecordsLifecycleInStore(t *testing.T) {
	fake := fakesp.New(fakesp.WithIDs("42"), fakesp.WithSteps(fakesp.Pending(), fakesp.Done([]string{"a", "b"})))
	p := newTestPoller(t, fake)

	b, err := NewBatch(p, WithJob(mustJob(t, "block", "example.com")), WithBatchLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	var (
		mu     sync.Mutex
		phases []string
	)
	st := &observingStore{Store: store.NewMemoryStore(), onUpdate: func(r store.JobRecord) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, r.Phase)
	}}

	b.run(context.Background(), st)

	want := []string{"queued", "submitted", "polling", "polling", "succeeded"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(phases, ",") != strings.Join(want, ",") {
		t.Errorf("phases = %v, want %v", phases, want)
	}

	record, ok := st.Get("block")
	if !ok {
		t.Fatal("record not stored")
	}
	if record.Handle != "42" || record.Polls != 2 || string(record.Result) != `["a","b"]` {
		t.Errorf("record = %+v", record)
	}
	if record.Error != nil {
		t.Errorf("Error = %q, want nil", *record.Error)
	}
}

func TestBatch_CancelledContext(t *testing.T) {
	fake := fakesp.New()
	p := newTestPoller(t, fake)

	b, err := NewBatch(p, WithJobs(
		mustJob(t, "a", "a.example.com"),
		mustJob(t, "b", "b.example.com"),
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, o := range b.Run(ctx) {
		if o.Phase != PhaseCancelled {
			t.Errorf("%s: Phase = %q, want cancelled", o.JobName, o.Phase)
		}
	}
	if len(fake.Creates()) != 0 {
		t.Errorf("server saw %d creates, want 0", len(fake.Creates()))
	}
}

func TestWithOutcomeCallback(t *testing.T) {
	fake := fakesp.New(fakesp.WithScript(zoneScript))
	p := newTestPoller(t, fake)

	var (
		mu       sync.Mutex
		received = make(map[string]Phase)
	)
	b, err := NewBatch(p,
		WithJobs(mustJob(t, "good", "good.example.com"), mustJob(t, "bad", "bad.example.com")),
		WithOutcomeCallback(nil),
		WithOutcomeCallback(func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			received[o.JobName] = o.Phase
		}),
		WithOutcomeCallback(func(Outcome) { panic("callback bug") }),
		WithBatchLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	b.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if received["good"] != PhaseSucceeded || received["bad"] != PhaseFailed {
		t.Errorf("received = %v", received)
	}
}

func TestBatch_StartServesStatusAPI(t *testing.T) {
	fake := fakesp.New(fakesp.WithIDs("42"), fakesp.WithSteps(fakesp.Done([]string{"a"})))
	reg := prometheus.NewRegistry()
	p := newTestPoller(t, fake, WithMetricsRegistry(reg))

	// use a high port to avoid conflicts
	const port = 19101
	b, err := NewBatch(p,
		WithJob(mustJob(t, "block", "example.com")),
		WithPort(port),
		WithBatchLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	base := fmt.Sprintf("http://localhost:%d", port)

	// wait for the job to finish
	var record store.JobRecord
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/jobs/block")
		if err == nil {
			_ = json.NewDecoder(resp.Body).Decode(&record)
			_ = resp.Body.Close()
			if record.Phase == string(PhaseSucceeded) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	if record.Phase != string(PhaseSucceeded) {
		t.Fatalf("record phase = %q, want succeeded", record.Phase)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `spjobs_jobs_total{outcome="succeeded"} 1`) {
		t.Errorf("/metrics missing job outcome, got: %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestBatch_StartReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	p := newTestPoller(t, fakesp.New())
	b, err := NewBatch(p, WithJob(mustJob(t, "a", "a.example.com")), WithPort(19102))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Start() did not return immediately")
	}
}

// observingStore reports every update to onUpdate before storing it.
type observingStore struct {
	store.Store
	onUpdate func(store.JobRecord)
}

func (s *observingStore) Update(r store.JobRecord) {
	s.onUpdate(r)
	s.Store.Update(r)
}
