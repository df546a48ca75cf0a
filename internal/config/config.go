// Package config handles engine configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds engine defaults. A CLI flag, where one exists for a field
// (currently only the stdout byte cap), overrides it.
type Config struct {
	// MaxStdoutBytes caps captured child stdout when the caller does not
	// set an explicit cap. 0 means unlimited.
	MaxStdoutBytes uint64 `yaml:"max_stdout_bytes"`
	// Taint policy toggles, applied to every argument vector.
	Taint TaintConfig `yaml:"taint"`
	// Debug forces debug logging and noisy mirroring, same as the
	// BASTION_DEBUG environment variable.
	Debug bool `yaml:"debug"`
}

// TaintConfig mirrors taint.Policy for the config file.
type TaintConfig struct {
	AllowNewlines bool `yaml:"allow_newlines"`
	DenyShellMeta bool `yaml:"deny_shell_meta"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{}
}

// DefaultSearchPaths returns the config file search order:
// ./bastion-exec.yaml, ~/.config/bastion/exec.yaml, /etc/bastion/exec.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"bastion-exec.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bastion", "exec.yaml"))
	}
	paths = append(paths, "/etc/bastion/exec.yaml")
	return paths
}

// Load reads the config file at path. If path is empty, the search paths
// are tried in order and the built-in defaults are returned when none
// exists. An explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, p := range DefaultSearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
