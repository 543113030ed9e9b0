// Package fakesp implements an in-process stand-in for the SP leader's
// job-request API.
//
// Each created job follows a script of status responses, one per status
// query. Once the script is exhausted the last step repeats, which models
// the monotone, idempotent terminal state of a real job.
package fakesp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultCollection is the path the fake serves job requests under.
	DefaultCollection = "/api/sp/job-requests/"

	// DefaultTokenHeader is the header checked when a token is configured.
	DefaultTokenHeader = "X-Arbux-APIToken"
)

// Step is one scripted status response.
type Step struct {
	// Completed is reported as the completed flag.
	Completed bool

	// Error, when non-empty, is reported as the error field.
	Error string

	// Result, when non-nil, is encoded as the result field.
	Result any

	// HTTPStatus, when non-zero, replaces the document with a bare response
	// of that status carrying Body.
	HTTPStatus int

	// Body is a raw response body. When set it replaces the JSON document.
	Body string
}

// Pending is a step reporting an unfinished job.
func Pending() Step { return Step{} }

// Done is a step reporting a completed job with result.
func Done(result any) Step { return Step{Completed: true, Result: result} }

// Failed is a step reporting a job error.
func Failed(msg string) Step { return Step{Error: msg} }

// Create records a job creation request received by the fake.
type Create struct {
	ID          string
	RequestType string
	Details     map[string]any
	Headers     http.Header
}

// ScriptFunc chooses the status script of a newly created job.
type ScriptFunc func(c Create) []Step

type job struct {
	create Create
	steps  []Step
	polls  int
}

// Server is an http.Handler serving the fake job-request API.
// It is safe for concurrent use.
type Server struct {
	collection   string
	tokenHeader  string
	token        string
	script       ScriptFunc
	nextID       func() string
	createStatus int
	createBody   string

	mu      sync.Mutex
	jobs    map[string]*job
	creates []Create
	seq     int
}

// Option configures a [Server].
type Option func(*Server)

// WithCollection serves job requests under path instead of [DefaultCollection].
func WithCollection(path string) Option {
	return func(s *Server) {
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		s.collection = path
	}
}

// WithToken rejects requests whose header does not carry token.
func WithToken(header, token string) Option {
	return func(s *Server) {
		s.tokenHeader = header
		s.token = token
	}
}

// WithSteps gives every job the same status script.
func WithSteps(steps ...Step) Option {
	return func(s *Server) {
		s.script = func(Create) []Step { return steps }
	}
}

// WithScript chooses a status script per job.
func WithScript(fn ScriptFunc) Option {
	return func(s *Server) {
		s.script = fn
	}
}

// WithIDs issues the given ids in order, then falls back to sequence numbers.
func WithIDs(ids ...string) Option {
	return func(s *Server) {
		queue := append([]string(nil), ids...)
		s.nextID = func() string {
			if len(queue) == 0 {
				s.seq++
				return fmt.Sprintf("%d", s.seq)
			}
			id := queue[0]
			queue = queue[1:]
			return id
		}
	}
}

// WithCreateResponse answers every creation request with status and body.
func WithCreateResponse(status int, body string) Option {
	return func(s *Server) {
		s.createStatus = status
		s.createBody = body
	}
}

// New creates a fake leader. By default jobs report pending once, then
// complete with an empty list, and ids are random UUIDs.
func New(opts ...Option) *Server {
	s := &Server{
		collection:  DefaultCollection,
		tokenHeader: DefaultTokenHeader,
		script: func(Create) []Step {
			return []Step{Pending(), Done([]string{})}
		},
		nextID: uuid.NewString,
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Creates returns the creation requests received so far, in order.
func (s *Server) Creates() []Create {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Create(nil), s.creates...)
}

// Polls returns the number of status queries received for id.
func (s *Server) Polls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.polls
	}
	return 0
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, s.collection) {
		writeErrors(w, http.StatusNotFound, "Not Found", "no such resource")
		return
	}
	if s.token != "" && r.Header.Get(s.tokenHeader) != s.token {
		writeErrors(w, http.StatusUnauthorized, "Unauthorized", "invalid API token")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, s.collection)
	switch {
	case id == "" && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case id != "" && r.Method == http.MethodGet:
		s.handleStatus(w, strings.TrimSuffix(id, "/"))
	default:
		writeErrors(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not supported")
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var doc struct {
		Data struct {
			Attributes struct {
				RequestType string         `json:"request_type"`
				Details     map[string]any `json:"details"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeErrors(w, http.StatusBadRequest, "Bad Request", "body is not a JSON:API document")
		return
	}
	if doc.Data.Attributes.RequestType == "" {
		writeErrors(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "request_type is required")
		return
	}

	s.mu.Lock()
	c := Create{
		ID:          s.nextID(),
		RequestType: doc.Data.Attributes.RequestType,
		Details:     doc.Data.Attributes.Details,
		Headers:     r.Header.Clone(),
	}
	s.creates = append(s.creates, c)
	if s.createStatus == 0 {
		s.jobs[c.ID] = &job{create: c, steps: s.script(c)}
	}
	s.mu.Unlock()

	if s.createStatus != 0 {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(s.createStatus)
		_, _ = w.Write([]byte(s.createBody))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"id":   c.ID,
			"type": "job_request",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	var st Step
	if ok {
		if len(j.steps) > 0 {
			idx := j.polls
			if idx >= len(j.steps) {
				idx = len(j.steps) - 1
			}
			st = j.steps[idx]
		}
		j.polls++
	}
	s.mu.Unlock()

	if !ok {
		writeErrors(w, http.StatusNotFound, "Not Found", "job request "+id+" not found")
		return
	}

	if st.HTTPStatus != 0 || st.Body != "" {
		status := st.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(st.Body))
		return
	}

	attrs := map[string]any{"completed": st.Completed}
	if st.Error != "" {
		attrs["error"] = st.Error
	}
	if st.Result != nil {
		attrs["result"] = st.Result
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":         id,
			"type":       "job_request",
			"attributes": attrs,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]string{{"title": title, "detail": detail}},
	})
}
