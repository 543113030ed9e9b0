package store

import (
	"encoding/json"
	"time"
)

// JobRecord represents the current state of a batch job in storage.
//
// JobRecord is the storage representation of a job, shaped for JSON
// serialization (used by the REST API and SSE). It is decoupled from the
// poller's types to allow independent evolution.
type JobRecord struct {
	// Name is the job's display name.
	Name string `json:"name"`

	// Handle is the id assigned by the leader. Empty until submitted.
	Handle string `json:"handle,omitempty"`

	// RequestType is the job-type tag of the request.
	RequestType string `json:"request_type"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels"`

	// Phase is the job's lifecycle position (e.g. "polling", "succeeded").
	Phase string `json:"phase"`

	// Polls is the number of status queries made so far.
	Polls int `json:"polls"`

	// SubmittedAt is when the leader accepted the job. Zero if not submitted.
	SubmittedAt time.Time `json:"submitted_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// Error contains the failure message of a job that did not succeed.
	Error *string `json:"error"`

	// Result is the raw result payload of a succeeded job.
	Result json.RawMessage `json:"result,omitempty"`
}

// Store defines the interface for storing and subscribing to job updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a job record and notifies all subscribers.
	// The record is keyed by Name, so subsequent updates replace previous values.
	Update(record JobRecord)

	// Get returns the record stored under name.
	Get(name string) (JobRecord, bool)

	// GetAll returns all currently stored records, sorted by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []JobRecord

	// Subscribe returns a channel that receives record updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan JobRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan JobRecord)
}
