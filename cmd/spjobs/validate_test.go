package main

import (
	"strings"
	"testing"
)

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: https://leader.example.com/api/sp/
  token: secret
poll:
  interval: 2s
jobs:
  - name: single
    details:
      zone: single.example.com
matrices:
  - name: zones
    details:
      server: "{{.server}}"
      zone: "{{.zone}}"
    dimensions:
      server: [ns1, ns2]
      zone: [a, b]
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Leader:        https://leader.example.com/api/sp/",
		"Poll interval: 2s",
		"Max wait:      unbounded",
		"Concurrency:   4",
		"1 direct + 4 from matrices = 5 total",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: https://leader.example.com/api/sp/
  token: secret
jobs:
  - name: ""
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("error should mention 'name is required', got: %v", err)
	}
}

func TestRunValidate_UnknownTemplateKey(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: https://leader.example.com/api/sp/
  token: secret
matrices:
  - name: zones
    details:
      zone: "{{.region}}"
    dimensions:
      zone: [a]
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for unknown template key, got nil")
	}
	if !strings.Contains(err.Error(), "zones") {
		t.Errorf("error should name the matrix, got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}
