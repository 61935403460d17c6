package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Dilutions must use the assay buffer.
# severity: error
package site.buffer

import rego.v1

deny contains msg if {
	some wl in input.series.worklists
	some t in wl.transfers
	t.diluent
	t.diluent != "assay buffer"
	msg := sprintf("%v uses %v", [wl.label, t.diluent])
}
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "assay-buffer.rego")
	writeFile(t, policyFile, testRego)

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "assay-buffer" {
		t.Errorf("Expected name 'assay-buffer', got '%s'", policy.Name)
	}
	if policy.Description != "Dilutions must use the assay buffer." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity from header, got %s", policy.Severity)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Metadata["source"] != policyFile {
		t.Errorf("Expected source metadata, got %v", policy.Metadata)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "labels.json")

	data, err := json.Marshal(Policy{
		Name:        "site-labels",
		Description: "Site label rules",
		Rego:        "package site.labels\ndeny[msg] { false; msg := \"\" }",
		Enabled:     true,
		Tags:        []string{"naming"},
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "site-labels" || len(policy.Tags) != 1 {
		t.Errorf("Unexpected policy %+v", policy)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "policy.txt"), "not a policy")
	writeFile(t, filepath.Join(dir, "invalid.json"), "{not json")
	writeFile(t, filepath.Join(dir, "anonymous.json"), `{"rego": "package x"}`)

	for _, name := range []string{"policy.txt", "invalid.json", "anonymous.json", "missing.rego"} {
		if _, err := loader.loadFromFile(context.Background(), filepath.Join(dir, name)); err == nil {
			t.Errorf("Expected error for %s", name)
		}
	}
	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "b.rego"), "package b\ndeny[msg] { false; msg := \"\" }")
	writeFile(t, filepath.Join(dir, "nested", "a.rego"), "package a\ndeny[msg] { false; msg := \"\" }")
	writeFile(t, filepath.Join(dir, "README.md"), "# ignored")
	writeFile(t, filepath.Join(dir, "broken.json"), "{")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "b" || policies[1].Name != "a" {
		t.Errorf("Expected path order b, nested/a; got %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestLoadBundle(t *testing.T) {
	loader := newTestLoader()
	bundleFile := filepath.Join(t.TempDir(), "bundle.json")

	bundle := Bundle{
		Name:    "site",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "p1", Rego: "package p1\ndeny[msg] { false; msg := \"\" }", Severity: SeverityError, Enabled: true},
			{Name: "p2", Rego: "package p2\ndeny[msg] { false; msg := \"\" }", Enabled: true},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	writeFile(t, bundleFile, string(data))

	loaded, err := loader.LoadBundle(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if loaded.Name != "site" || loaded.Version != "1.0.0" || len(loaded.Policies) != 2 {
		t.Errorf("Unexpected bundle %+v", loaded)
	}
	if loaded.Policies[1].Severity != SeverityWarning {
		t.Errorf("Expected default severity for p2, got %s", loaded.Policies[1].Severity)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		description string
		severity    Severity
	}{
		{"single line", "# A policy\npackage test", "A policy", SeverityWarning},
		{"multi line", "# A policy\n# over two lines\npackage test", "A policy over two lines", SeverityWarning},
		{"no comments", "package test\n# trailing", "", SeverityWarning},
		{"severity line", "# Checks\n#\n# severity: critical\npackage test", "Checks", SeverityCritical},
		{"leading blank lines", "\n\n# Late header\npackage test", "Late header", SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, severity := parseHeader(tt.content)
			if description != tt.description {
				t.Errorf("Expected description %q, got %q", tt.description, description)
			}
			if severity != tt.severity {
				t.Errorf("Expected severity %s, got %s", tt.severity, severity)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "cached.rego")
	writeFile(t, policyFile, "# first\npackage cached")

	if _, err := loader.loadFromFile(context.Background(), policyFile); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	writeFile(t, policyFile, "# second\npackage cached")

	policy, _ := loader.loadFromFile(context.Background(), policyFile)
	if policy.Description != "first" {
		t.Errorf("Expected cached policy, got %q", policy.Description)
	}

	loader.ClearCache()
	policy, _ = loader.loadFromFile(context.Background(), policyFile)
	if policy.Description != "second" {
		t.Errorf("Expected reloaded policy, got %q", policy.Description)
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assay-buffer.rego"), testRego)

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	p, err := eng.GetPolicy("assay-buffer")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", p.Severity)
	}

	result := evaluate(t, eng, seriesOf(dilutions("buffer", "BioMek", 10)))
	if result.Allowed {
		t.Error("Expected loaded policy to deny the series")
	}
}

func TestWatch_ReloadsChangedPolicies(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "# one\npackage a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		select {
		case reloaded <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.rego"), "# two\npackage b")

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
