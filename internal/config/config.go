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

// Package config loads and validates the baton configuration. Values come
// from three layers: built-in defaults, an optional YAML file, and
// environment variables, with later layers winning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

// Backend names for the paused-execution store.
const (
	// BackendFile stores one JSON snapshot file per paused execution.
	BackendFile = "file"
	// BackendSQLite stores snapshots in a single SQLite database.
	BackendSQLite = "sqlite"
)

// Config represents the complete baton configuration.
type Config struct {
	State       StateConfig       `yaml:"state"`
	Shell       ShellConfig       `yaml:"shell"`
	Log         LogConfig         `yaml:"log"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	Engine      EngineConfig      `yaml:"engine"`
}

// StateConfig configures where paused executions are persisted.
type StateConfig struct {
	// Backend selects the store implementation (file, sqlite).
	// Environment: BATON_STATE_BACKEND
	// Default: file
	Backend string `yaml:"backend"`

	// Dir is the snapshot directory for the file backend.
	// Environment: BATON_STATE_DIR
	// Default: <data dir>/state
	Dir string `yaml:"dir,omitempty"`

	// Path is the database file for the sqlite backend.
	// Environment: BATON_STATE_DB
	// Default: <data dir>/baton.db
	Path string `yaml:"path,omitempty"`

	// WAL enables Write-Ahead Logging for the sqlite backend.
	WAL bool `yaml:"wal,omitempty"`
}

// ShellConfig configures how command steps are executed.
type ShellConfig struct {
	// WorkingDir is the working directory for commands. Empty inherits
	// the process working directory.
	WorkingDir string `yaml:"working_dir,omitempty"`

	// Env is appended to the inherited environment as KEY=VALUE pairs.
	Env []string `yaml:"env,omitempty"`

	// Timeout bounds each command; zero means no timeout.
	// Environment: BATON_SHELL_TIMEOUT
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// Source adds source file and line information to logs.
	// Environment: LOG_SOURCE
	Source bool `yaml:"source,omitempty"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Exporter selects the span exporter (none, stdout, otlp).
	// Environment: BATON_TRACE_EXPORTER
	// Default: none
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector endpoint, host:port.
	// Environment: BATON_TRACE_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool `yaml:"insecure,omitempty"`

	// SampleRatio samples a fraction of runs in (0, 1]. Zero or one
	// traces everything.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// DefinitionsConfig configures where workflow definitions are loaded from.
type DefinitionsConfig struct {
	// Dir is scanned for *.yaml workflow definitions.
	// Environment: BATON_DEFINITIONS_DIR
	Dir string `yaml:"dir,omitempty"`

	// Watch reloads definitions when files in Dir change.
	Watch bool `yaml:"watch,omitempty"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// ParallelConcurrency caps concurrent children per parallel group.
	// Environment: BATON_PARALLEL_CONCURRENCY
	// Default: 3
	ParallelConcurrency int `yaml:"parallel_concurrency,omitempty"`

	// MaxNestingDepth caps sub-workflow nesting.
	// Environment: BATON_MAX_NESTING_DEPTH
	// Default: 8
	MaxNestingDepth int `yaml:"max_nesting_depth,omitempty"`

	// StaleThreshold is how long a paused execution may sit before it is
	// reported as stale.
	// Environment: BATON_STALE_THRESHOLD
	// Default: 24h
	StaleThreshold time.Duration `yaml:"stale_threshold,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		State: StateConfig{
			Backend: BackendFile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
		Engine: EngineConfig{
			ParallelConcurrency: 3,
			MaxNestingDepth:     8,
			StaleThreshold:      24 * time.Hour,
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in that order. If configPath is empty, only
// defaults and environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &batonerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in zero values with the built-in defaults, so a
// minimal file (e.g. just a state backend) works without specifying every
// field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.State.Backend == "" {
		c.State.Backend = defaults.State.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Engine.ParallelConcurrency == 0 {
		c.Engine.ParallelConcurrency = defaults.Engine.ParallelConcurrency
	}
	if c.Engine.MaxNestingDepth == 0 {
		c.Engine.MaxNestingDepth = defaults.Engine.MaxNestingDepth
	}
	if c.Engine.StaleThreshold == 0 {
		c.Engine.StaleThreshold = defaults.Engine.StaleThreshold
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("BATON_STATE_BACKEND"); val != "" {
		c.State.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_STATE_DIR"); val != "" {
		c.State.Dir = val
	}
	if val := os.Getenv("BATON_STATE_DB"); val != "" {
		c.State.Path = val
	}

	if val := os.Getenv("BATON_SHELL_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Shell.Timeout = duration
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.Source = val == "1" || val == "true"
	}

	if val := os.Getenv("BATON_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_TRACE_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val := os.Getenv("BATON_DEFINITIONS_DIR"); val != "" {
		c.Definitions.Dir = val
	}

	if val := os.Getenv("BATON_PARALLEL_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.ParallelConcurrency = n
		}
	}
	if val := os.Getenv("BATON_MAX_NESTING_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxNestingDepth = n
		}
	}
	if val := os.Getenv("BATON_STALE_THRESHOLD"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Engine.StaleThreshold = duration
		}
	}
}

// Validate checks the configuration for contradictions and bad values.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return &batonerrors.ConfigError{
			Key:    "state.backend",
			Reason: fmt.Sprintf("unknown backend %q (expected %q or %q)", c.State.Backend, BackendFile, BackendSQLite),
		}
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return &batonerrors.ConfigError{
			Key:    "log.level",
			Reason: fmt.Sprintf("unknown level %q", c.Log.Level),
		}
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return &batonerrors.ConfigError{
			Key:    "log.format",
			Reason: fmt.Sprintf("unknown format %q (expected json or text)", c.Log.Format),
		}
	}

	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return &batonerrors.ConfigError{
			Key:    "tracing.exporter",
			Reason: fmt.Sprintf("unknown exporter %q (expected none, stdout or otlp)", c.Tracing.Exporter),
		}
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return &batonerrors.ConfigError{
			Key:    "tracing.endpoint",
			Reason: "an endpoint is required for the otlp exporter",
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return &batonerrors.ConfigError{
			Key:    "tracing.sample_ratio",
			Reason: "sample ratio must be between 0 and 1",
		}
	}

	if c.Shell.Timeout < 0 {
		return &batonerrors.ConfigError{
			Key:    "shell.timeout",
			Reason: "timeout cannot be negative",
		}
	}

	if c.Engine.ParallelConcurrency < 1 {
		return &batonerrors.ConfigError{
			Key:    "engine.parallel_concurrency",
			Reason: "concurrency must be at least 1",
		}
	}
	if c.Engine.MaxNestingDepth < 1 {
		return &batonerrors.ConfigError{
			Key:    "engine.max_nesting_depth",
			Reason: "nesting depth must be at least 1",
		}
	}
	if c.Engine.StaleThreshold < 0 {
		return &batonerrors.ConfigError{
			Key:    "engine.stale_threshold",
			Reason: "stale threshold cannot be negative",
		}
	}

	return nil
}

// StateDir returns the snapshot directory for the file backend, falling
// back to <data dir>/state when unset.
func (c *Config) StateDir() (string, error) {
	if c.State.Dir != "" {
		return c.State.Dir, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "state"), nil
}

// StatePath returns the database path for the sqlite backend, falling
// back to <data dir>/baton.db when unset.
func (c *Config) StatePath() (string, error) {
	if c.State.Path != "" {
		return c.State.Path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "baton.db"), nil
}
