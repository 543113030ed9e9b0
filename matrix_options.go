package spjobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// matrixConfig holds configuration during job matrix construction.
type matrixConfig struct {
	templates     map[string]string
	staticDetails map[string]any
	dimensions    map[string][]string
	staticLabels  map[string]string
}

// MatrixOption configures job matrix generation.
// MatrixOption implements the functional options pattern for [NewJobMatrix].
type MatrixOption func(*matrixConfig) error

// WithDetailTemplates sets request details rendered per combination.
// Each value uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithDetailTemplates(map[string]string{"zone": "{{.zone}}.example.com"})
//
// Returns an error if the map is empty or any key is empty.
func WithDetailTemplates(templates map[string]string) MatrixOption {
	return func(cfg *matrixConfig) error {
		if len(templates) == 0 {
			return errors.New("at least one detail template required")
		}
		for k, v := range templates {
			if k == "" {
				return errors.New("detail template key cannot be empty")
			}
			cfg.templates[k] = v
		}
		return nil
	}
}

// WithMatrixDetails adds details sent unchanged with every generated job.
// A detail template with the same key takes precedence.
//
// Returns an error if any key is empty or any value is not JSON-encodable.
func WithMatrixDetails(details map[string]any) MatrixOption {
	return func(cfg *matrixConfig) error {
		for k, v := range details {
			if k == "" {
				return errors.New("detail key cannot be empty")
			}
			if _, err := json.Marshal(v); err != nil {
				return fmt.Errorf("detail %q is not JSON-encodable: %w", k, err)
			}
			cfg.staticDetails[k] = v
		}
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the job combinations.
//
// Example:
//
//	WithDimensions(map[string][]string{
//	    "server": {"ns1.example.com", "ns2.example.com"},
//	    "zone":   {"a.example.com", "b.example.com"},
//	})
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) MatrixOption {
	return func(cfg *matrixConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithMatrixLabels adds static labels to all generated jobs.
// These labels are merged with auto-generated dimension labels.
// On collision, static labels take precedence over dimension labels.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithMatrixLabels(keyValues ...string) MatrixOption {
	return func(cfg *matrixConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithMatrixLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticLabels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
