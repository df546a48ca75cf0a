package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	// Run from a directory with no config so the search finds nothing.
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxStdoutBytes != 0 {
		t.Errorf("MaxStdoutBytes = %d, want 0", cfg.MaxStdoutBytes)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.yaml")
	content := `
max_stdout_bytes: 4096
debug: true
taint:
  allow_newlines: true
  deny_shell_meta: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxStdoutBytes != 4096 {
		t.Errorf("MaxStdoutBytes = %d, want 4096", cfg.MaxStdoutBytes)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if !cfg.Taint.AllowNewlines || !cfg.Taint.DenyShellMeta {
		t.Errorf("taint config = %+v", cfg.Taint)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	if _, err := Load("/nonexistent/exec.yaml"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.yaml")
	if err := os.WriteFile(path, []byte("max_stdout_bytes: [not a number"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}
