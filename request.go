package spjobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// RequestTypeDNSFilterList asks the leader to build a DNS filter list from a
// zone transfer of a managed DNS zone.
const RequestTypeDNSFilterList = "generate_dns_filter_list"

// JobRequest is the payload of a job creation request.
//
// JobRequest is immutable after creation via [NewJobRequest]. Detail values
// are deep-copied on construction and whenever they are returned, so nested
// slices and maps are never shared with the caller. Pointers are not followed.
type JobRequest struct {
	requestType string
	details     map[string]any
}

// Type returns the job-type tag sent as request_type.
func (r JobRequest) Type() string {
	return r.requestType
}

// Details returns a copy of the request details.
// Returns nil if no details are set.
func (r JobRequest) Details() map[string]any {
	return copyAnyMap(r.details)
}

// Detail returns a copy of a single detail value and whether it was set.
func (r JobRequest) Detail(key string) (any, bool) {
	v, ok := r.details[key]
	return cloneValue(v), ok
}

// requestConfig holds mutable state during request construction.
type requestConfig struct {
	details map[string]any
}

// RequestOption configures a [JobRequest] during construction.
type RequestOption func(*requestConfig) error

// WithDetail sets one entry of the request details.
//
// The value must be JSON-encodable. Returns an error if key is empty or the
// value cannot be encoded.
func WithDetail(key string, value any) RequestOption {
	return func(cfg *requestConfig) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("detail key cannot be empty")
		}
		if _, err := json.Marshal(value); err != nil {
			return fmt.Errorf("detail %q is not JSON-encodable: %w", key, err)
		}
		cfg.details[key] = cloneValue(value)
		return nil
	}
}

// WithDetails sets several detail entries at once.
// Equivalent to calling [WithDetail] for each entry.
func WithDetails(details map[string]any) RequestOption {
	return func(cfg *requestConfig) error {
		for k, v := range details {
			if err := WithDetail(k, v)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewJobRequest creates a [JobRequest] of the given type.
//
// Example:
//
//	req, err := spjobs.NewJobRequest("generate_dns_filter_list",
//	    spjobs.WithDetail("server", "ns.example.com"),
//	    spjobs.WithDetail("zone", "zone-to-block.example.com"),
//	)
//
// Returns an error if requestType is empty or any option fails.
func NewJobRequest(requestType string, opts ...RequestOption) (JobRequest, error) {
	if strings.TrimSpace(requestType) == "" {
		return JobRequest{}, errors.New("request type cannot be empty")
	}

	cfg := &requestConfig{details: make(map[string]any)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return JobRequest{}, err
		}
	}

	return JobRequest{
		requestType: requestType,
		details:     cfg.details,
	}, nil
}

// NewDNSFilterListRequest creates the request that generates a DNS filter
// list from a zone transfer of zone served by server.
func NewDNSFilterListRequest(server, zone string) (JobRequest, error) {
	if server == "" {
		return JobRequest{}, errors.New("nameserver cannot be empty")
	}
	if zone == "" {
		return JobRequest{}, errors.New("zone cannot be empty")
	}
	return NewJobRequest(RequestTypeDNSFilterList,
		WithDetail("server", server),
		WithDetail("zone", zone),
	)
}

// copyAnyMap returns a deep copy of the map.
func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = cloneValue(v)
	}
	return cp
}

// cloneValue copies slices, arrays and maps recursively, keeping their
// concrete types. Other values are returned as is.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		cp := reflect.New(v.Type()).Elem()
		cp.Set(cloneReflect(v.Elem()))
		return cp
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			cp.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return cp
	case reflect.Array:
		cp := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			cp.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return cp
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		cp := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return cp
	}
	return v
}
