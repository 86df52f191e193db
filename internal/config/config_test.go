// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.State.Backend != BackendFile {
		t.Errorf("expected backend 'file', got %q", cfg.State.Backend)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Log.Format)
	}

	if cfg.Tracing.Exporter != "none" {
		t.Errorf("expected exporter 'none', got %q", cfg.Tracing.Exporter)
	}

	if cfg.Engine.ParallelConcurrency != 3 {
		t.Errorf("expected parallel concurrency 3, got %d", cfg.Engine.ParallelConcurrency)
	}
	if cfg.Engine.MaxNestingDepth != 8 {
		t.Errorf("expected max nesting depth 8, got %d", cfg.Engine.MaxNestingDepth)
	}
	if cfg.Engine.StaleThreshold != 24*time.Hour {
		t.Errorf("expected stale threshold 24h, got %v", cfg.Engine.StaleThreshold)
	}

	if cfg.Shell.Timeout != 0 {
		t.Errorf("expected no shell timeout by default, got %v", cfg.Shell.Timeout)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.State.Backend != BackendFile {
		t.Errorf("expected default backend, got %q", cfg.State.Backend)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
state:
  backend: sqlite
  path: /var/lib/baton/baton.db
  wal: true
shell:
  timeout: 30s
  env:
    - DEPLOY_ENV=staging
log:
  level: debug
definitions:
  dir: /etc/baton/workflows
  watch: true
engine:
  parallel_concurrency: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.State.Backend != BackendSQLite {
		t.Errorf("expected backend 'sqlite', got %q", cfg.State.Backend)
	}
	if cfg.State.Path != "/var/lib/baton/baton.db" {
		t.Errorf("unexpected state path %q", cfg.State.Path)
	}
	if !cfg.State.WAL {
		t.Errorf("expected WAL enabled")
	}

	if cfg.Shell.Timeout != 30*time.Second {
		t.Errorf("expected shell timeout 30s, got %v", cfg.Shell.Timeout)
	}
	if len(cfg.Shell.Env) != 1 || cfg.Shell.Env[0] != "DEPLOY_ENV=staging" {
		t.Errorf("unexpected shell env %v", cfg.Shell.Env)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.Log.Level)
	}

	// Unset fields fall back to defaults.
	if cfg.Log.Format != "json" {
		t.Errorf("expected default format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Engine.MaxNestingDepth != 8 {
		t.Errorf("expected default nesting depth, got %d", cfg.Engine.MaxNestingDepth)
	}

	if cfg.Definitions.Dir != "/etc/baton/workflows" {
		t.Errorf("unexpected definitions dir %q", cfg.Definitions.Dir)
	}
	if !cfg.Definitions.Watch {
		t.Errorf("expected watch enabled")
	}

	if cfg.Engine.ParallelConcurrency != 5 {
		t.Errorf("expected parallel concurrency 5, got %d", cfg.Engine.ParallelConcurrency)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}

	var cfgErr *batonerrors.ConfigError
	if !batonerrors.As(err, &cfgErr) {
		t.Fatalf("expected a ConfigError, got %T", err)
	}
	if cfgErr.Key != "config_file" {
		t.Errorf("expected key 'config_file', got %q", cfgErr.Key)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("state: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("state:\n  backend: file\nlog:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BATON_STATE_BACKEND", "sqlite")
	t.Setenv("BATON_STATE_DB", "/tmp/override.db")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("BATON_SHELL_TIMEOUT", "45s")
	t.Setenv("BATON_PARALLEL_CONCURRENCY", "7")
	t.Setenv("BATON_STALE_THRESHOLD", "48h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.State.Backend != BackendSQLite {
		t.Errorf("expected env override to sqlite, got %q", cfg.State.Backend)
	}
	if cfg.State.Path != "/tmp/override.db" {
		t.Errorf("unexpected state path %q", cfg.State.Path)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected lowered level 'error', got %q", cfg.Log.Level)
	}
	if cfg.Shell.Timeout != 45*time.Second {
		t.Errorf("expected shell timeout 45s, got %v", cfg.Shell.Timeout)
	}
	if cfg.Engine.ParallelConcurrency != 7 {
		t.Errorf("expected parallel concurrency 7, got %d", cfg.Engine.ParallelConcurrency)
	}
	if cfg.Engine.StaleThreshold != 48*time.Hour {
		t.Errorf("expected stale threshold 48h, got %v", cfg.Engine.StaleThreshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.State.Backend = "redis" },
			wantKey: "state.backend",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantKey: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantKey: "log.format",
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Tracing.Exporter = "jaeger" },
			wantKey: "tracing.exporter",
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Tracing.Exporter = "otlp" },
			wantKey: "tracing.endpoint",
		},
		{
			name: "otlp with endpoint",
			mutate: func(c *Config) {
				c.Tracing.Exporter = "otlp"
				c.Tracing.Endpoint = "localhost:4318"
			},
		},
		{
			name:    "sample ratio out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRatio = 1.5 },
			wantKey: "tracing.sample_ratio",
		},
		{
			name:    "negative shell timeout",
			mutate:  func(c *Config) { c.Shell.Timeout = -time.Second },
			wantKey: "shell.timeout",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Engine.ParallelConcurrency = 0 },
			wantKey: "engine.parallel_concurrency",
		},
		{
			name:    "zero nesting depth",
			mutate:  func(c *Config) { c.Engine.MaxNestingDepth = 0 },
			wantKey: "engine.max_nesting_depth",
		},
		{
			name:    "negative stale threshold",
			mutate:  func(c *Config) { c.Engine.StaleThreshold = -time.Hour },
			wantKey: "engine.stale_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected a validation error")
			}

			var cfgErr *batonerrors.ConfigError
			if !batonerrors.As(err, &cfgErr) {
				t.Fatalf("expected a ConfigError, got %T", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, cfgErr.Key)
			}
		})
	}
}

func TestStateDir_Fallback(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	cfg := Default()

	dir, err := cfg.StateDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := filepath.Join(dataHome, "baton", "state")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}

	cfg.State.Dir = "/explicit/state"
	dir, err = cfg.StateDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/explicit/state" {
		t.Errorf("expected explicit dir, got %q", dir)
	}
}

func TestStatePath_Fallback(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	cfg := Default()

	path, err := cfg.StatePath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := filepath.Join(dataHome, "baton", "baton.db")
	if path != expected {
		t.Errorf("expected %q, got %q", expected, path)
	}
}

func TestConfigDir_RespectsXDG(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(dir, configHome) {
		t.Errorf("expected dir under %q, got %q", configHome, dir)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected config.yaml, got %q", path)
	}
}
