package spjobs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// NewJobMatrix creates one [Job] per combination of dimension values, all of
// the same request type, using cartesian product expansion.
//
// Detail templates use Go's text/template syntax with dimension keys as
// variables. Missing template keys cause an error (fail-fast). Static details
// from [WithMatrixDetails] are sent unchanged.
//
// Each job name includes dimension values in the format
// "Base Name (val1/val2)" (values from alphabetically sorted keys).
//
// Labels are automatically added from dimension values. Static labels from
// [WithMatrixLabels] take precedence over dimension labels on collision.
//
// Example:
//
//	jobs, err := spjobs.NewJobMatrix("Block zones", spjobs.RequestTypeDNSFilterList,
//	    spjobs.WithDetailTemplates(map[string]string{
//	        "server": "{{.server}}",
//	        "zone":   "{{.zone}}",
//	    }),
//	    spjobs.WithDimensions(map[string][]string{
//	        "server": {"ns1.example.com"},
//	        "zone":   {"a.example.com", "b.example.com"},
//	    }),
//	)
//	// Returns 2 jobs, usable with WithJobs(jobs...)
func NewJobMatrix(baseName, requestType string, opts ...MatrixOption) ([]Job, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}
	if strings.TrimSpace(requestType) == "" {
		return nil, errors.New("request type cannot be empty")
	}

	cfg := &matrixConfig{
		templates:     make(map[string]string),
		staticDetails: make(map[string]any),
		staticLabels:  make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.templates) == 0 {
		return nil, errors.New("at least one detail template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// parse every template once with missingkey=error for fail-fast behaviour
	parsed := make(map[string]*template.Template, len(cfg.templates))
	for key, text := range cfg.templates {
		tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid template for detail '%s': %w", key, err)
		}
		parsed[key] = tmpl
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	jobs := make([]Job, 0, len(combinations))
	for _, combo := range combinations {
		name := formatJobName(baseName, combo)

		details := make(map[string]any, len(cfg.staticDetails)+len(parsed))
		for k, v := range cfg.staticDetails {
			details[k] = v
		}
		for key, tmpl := range parsed {
			value, err := executeTemplate(tmpl, combo)
			if err != nil {
				return nil, fmt.Errorf("template execution failed for job '%s': %w", name, err)
			}
			details[key] = value
		}

		req, err := NewJobRequest(requestType, WithDetails(details))
		if err != nil {
			return nil, fmt.Errorf("failed to create request for job '%s': %w", name, err)
		}

		// merge labels: dimension first, static overrides
		labels := mergeMaps(combo, cfg.staticLabels)

		job, err := NewJob(name, req, WithLabels(flattenMap(labels)...))
		if err != nil {
			return nil, fmt.Errorf("failed to create job '%s': %w", name, err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatJobName creates a name in the format "Base (v1/v2)".
// Values are ordered by sorted keys for consistent naming.
func formatJobName(baseName string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

// mergeMaps merges multiple maps, with later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// flattenMap converts a map to a slice of key-value pairs for variadic functions.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	result := make([]string, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		result = append(result, k, m[k])
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
