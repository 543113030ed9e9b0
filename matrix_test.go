package spjobs

import (
	"strings"
	"testing"
)

func TestCartesianProduct_TwoDimensions(t *testing.T) {
	dims := map[string][]string{
		"x": {"a", "b"},
		"y": {"1", "2"},
	}

	result := cartesianProduct(dims)

	if len(result) != 4 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 4", len(result))
	}

	// verify sorted key order (x, y) and preserved value order
	expected := []map[string]string{
		{"x": "a", "y": "1"},
		{"x": "a", "y": "2"},
		{"x": "b", "y": "1"},
		{"x": "b", "y": "2"},
	}
	for i, want := range expected {
		if result[i]["x"] != want["x"] || result[i]["y"] != want["y"] {
			t.Errorf("combination[%d] = %v, want %v", i, result[i], want)
		}
	}
}

func TestCartesianProduct_Empty(t *testing.T) {
	if got := cartesianProduct(nil); got != nil {
		t.Errorf("cartesianProduct(nil) = %v, want nil", got)
	}
	if got := cartesianProduct(map[string][]string{"a": {"1"}, "b": {}}); got != nil {
		t.Errorf("cartesianProduct() with empty dimension = %v, want nil", got)
	}
}

func TestNewJobMatrix_Expansion(t *testing.T) {
	jobs, err := NewJobMatrix("Block", RequestTypeDNSFilterList,
		WithDetailTemplates(map[string]string{
			"server": "{{.server}}",
			"zone":   "{{.zone}}.example.com",
		}),
		WithDimensions(map[string][]string{
			"server": {"ns1.example.com", "ns2.example.com"},
			"zone":   {"a", "b"},
		}),
		WithMatrixLabels("team", "netops"),
	)
	if err != nil {
		t.Fatalf("NewJobMatrix() error = %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("len(jobs) = %d, want 4", len(jobs))
	}

	first := jobs[0]
	if first.Name() != "Block (ns1.example.com/a)" {
		t.Errorf("Name() = %q", first.Name())
	}
	if first.Request().Type() != RequestTypeDNSFilterList {
		t.Errorf("Type() = %q", first.Request().Type())
	}
	if v, _ := first.Request().Detail("zone"); v != "a.example.com" {
		t.Errorf("Detail(zone) = %v, want a.example.com", v)
	}
	if v, _ := first.Request().Detail("server"); v != "ns1.example.com" {
		t.Errorf("Detail(server) = %v", v)
	}

	labels := first.Labels()
	if labels["zone"] != "a" || labels["server"] != "ns1.example.com" || labels["team"] != "netops" {
		t.Errorf("Labels() = %v", labels)
	}

	last := jobs[3]
	if last.Name() != "Block (ns2.example.com/b)" {
		t.Errorf("last Name() = %q", last.Name())
	}
}

func TestNewJobMatrix_StaticLabelsWin(t *testing.T) {
	jobs, err := NewJobMatrix("Z", "t",
		WithDetailTemplates(map[string]string{"zone": "{{.zone}}"}),
		WithDimensions(map[string][]string{"zone": {"a"}}),
		WithMatrixLabels("zone", "override"),
	)
	if err != nil {
		t.Fatalf("NewJobMatrix() error = %v", err)
	}
	if got := jobs[0].Labels()["zone"]; got != "override" {
		t.Errorf("Labels()[zone] = %q, want override", got)
	}
	if v, _ := jobs[0].Request().Detail("zone"); v != "a" {
		t.Errorf("Detail(zone) = %v, want a", v)
	}
}

func TestNewJobMatrix_StaticDetails(t *testing.T) {
	jobs, err := NewJobMatrix("Z", "t",
		WithMatrixDetails(map[string]any{"server": "ns.example.com", "zone": "ignored"}),
		WithDetailTemplates(map[string]string{"zone": "{{.zone}}"}),
		WithDimensions(map[string][]string{"zone": {"a", "b"}}),
	)
	if err != nil {
		t.Fatalf("NewJobMatrix() error = %v", err)
	}
	for _, job := range jobs {
		if v, _ := job.Request().Detail("server"); v != "ns.example.com" {
			t.Errorf("%s: Detail(server) = %v", job.Name(), v)
		}
		if v, _ := job.Request().Detail("zone"); v == "ignored" {
			t.Errorf("%s: template should win over static detail", job.Name())
		}
	}
}

func TestNewJobMatrix_Errors(t *testing.T) {
	templates := WithDetailTemplates(map[string]string{"zone": "{{.zone}}"})
	dims := WithDimensions(map[string][]string{"zone": {"a"}})

	tests := []struct {
		name        string
		baseName    string
		requestType string
		opts        []MatrixOption
		wantErr     string
	}{
		{"empty base name", "", "t", []MatrixOption{templates, dims}, "base name cannot be empty"},
		{"empty type", "Z", " ", []MatrixOption{templates, dims}, "request type cannot be empty"},
		{"no templates", "Z", "t", []MatrixOption{dims}, "at least one detail template required"},
		{"no dimensions", "Z", "t", []MatrixOption{templates}, "at least one dimension required"},
		{"empty dimension", "Z", "t", []MatrixOption{templates, WithDimensions(map[string][]string{"zone": {}})}, "has no values"},
		{"empty value", "Z", "t", []MatrixOption{templates, WithDimensions(map[string][]string{"zone": {"a", ""}})}, "empty value at index 1"},
		{"bad template", "Z", "t", []MatrixOption{WithDetailTemplates(map[string]string{"zone": "{{.zone"}), dims}, "invalid template"},
		{"missing key", "Z", "t", []MatrixOption{WithDetailTemplates(map[string]string{"zone": "{{.region}}"}), dims}, "template execution failed"},
		{"odd labels", "Z", "t", []MatrixOption{templates, dims, WithMatrixLabels("a")}, "even number"},
		{"bad static detail", "Z", "t", []MatrixOption{templates, dims, WithMatrixDetails(map[string]any{"c": make(chan int)})}, "not JSON-encodable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJobMatrix(tt.baseName, tt.requestType, tt.opts...)
			if err == nil {
				t.Fatal("NewJobMatrix() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFormatJobName(t *testing.T) {
	got := formatJobName("Zones", map[string]string{"zone": "b", "server": "ns1"})
	if got != "Zones (ns1/b)" {
		t.Errorf("formatJobName() = %q, want %q", got, "Zones (ns1/b)")
	}
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]string{"b": "2", "a": "1"})
	want := []string{"a", "1", "b", "2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("flattenMap() = %v, want %v", got, want)
	}
}
