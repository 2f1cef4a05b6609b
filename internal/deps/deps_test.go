package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "exit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" || !results[2].Optional {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckBinariesProbesVersion(t *testing.T) {
	binDir := t.TempDir()
	good := writeStub(t, binDir, "good", "echo 'good version 6.1'\necho 'built with gcc'\n")
	bad := writeStub(t, binDir, "bad", "exit 3\n")

	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "Good", Command: good, VersionArgs: []string{"-version"}},
		{Name: "Bad", Command: bad, VersionArgs: []string{"-version"}},
	})
	if !results[0].Available || results[0].Version != "good version 6.1" {
		t.Fatalf("unexpected probe result %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected failing probe to mark binary unavailable, got %#v", results[1])
	}
}
