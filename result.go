package spjobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoResult is returned when decoding a completed job that carried no
// result value.
var ErrNoResult = errors.New("job completed without a result")

// JobResult is the outcome of a completed job.
//
// Payload is the result field of the final status response, byte for byte.
// The helpers below read it without modifying it.
type JobResult struct {
	// Handle is the job that produced the result.
	Handle Handle

	// Payload is the raw result value. Nil if the leader sent none.
	Payload json.RawMessage

	// Polls is the number of status queries made while waiting.
	Polls int

	// Elapsed is the time from the start of the wait to completion.
	Elapsed time.Duration
}

// String returns the payload as a string.
func (r JobResult) String() string {
	return string(r.Payload)
}

// Empty reports whether the leader sent no result or an explicit null.
func (r JobResult) Empty() bool {
	trimmed := bytes.TrimSpace(r.Payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the payload into v.
//
// Returns [ErrNoResult] if the payload is empty.
func (r JobResult) Decode(v any) error {
	if r.Empty() {
		return ErrNoResult
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("failed to decode result of job %s: %w", r.Handle, err)
	}
	return nil
}

// Strings decodes a result that is a list of strings, as produced by DNS
// filter list jobs.
func (r JobResult) Strings() ([]string, error) {
	var out []string
	if err := r.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Field returns the raw value at path within the payload.
//
// The path uses dot notation; numeric segments index into arrays. For
// example "records.0.name" navigates {"records": [{"name": "x"}]}. An empty
// path returns the whole payload.
//
// Returns an error if the payload is empty or the path does not exist.
func (r JobResult) Field(path string) (json.RawMessage, error) {
	if r.Empty() {
		return nil, ErrNoResult
	}
	if path == "" {
		return r.Payload, nil
	}

	current := json.RawMessage(r.Payload)
	for _, part := range strings.Split(path, ".") {
		next, err := step(current, part)
		if err != nil {
			return nil, fmt.Errorf("result field %q: %w", path, err)
		}
		current = next
	}
	return current, nil
}

// step walks one path segment into an object or array.
func step(doc json.RawMessage, part string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("segment %q: no value", part)
	}

	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		v, ok := obj[part]
		if !ok {
			return nil, fmt.Errorf("segment %q: key not found", part)
		}
		return v, nil
	case '[':
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("segment %q: array index expected", part)
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(arr) {
			return nil, fmt.Errorf("segment %q: index out of range (len %d)", part, len(arr))
		}
		return arr[idx], nil
	default:
		return nil, fmt.Errorf("segment %q: cannot descend into a scalar", part)
	}
}
