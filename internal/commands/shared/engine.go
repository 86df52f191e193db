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

package shared

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/baton/internal/config"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/tracing"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/shell"
	"github.com/tombee/baton/pkg/workflow/state"
)

// Engine bundles the orchestrator with the collaborators built from
// configuration. Every subcommand that executes or inspects workflows goes
// through BuildEngine so they all agree on stores, logging and tracing.
type Engine struct {
	Config       *config.Config
	Orchestrator *workflow.Orchestrator
	Logger       *slog.Logger

	provider *tracing.Provider
	closers  []func() error
}

// LoadConfig resolves the effective configuration: the --config flag if
// given, otherwise the default config file when it exists, otherwise
// defaults plus environment variables.
func LoadConfig() (*config.Config, error) {
	path := GetConfigPath()
	if path == "" {
		defaultPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				path = defaultPath
			}
		}
	}
	return config.Load(path)
}

// BuildEngine constructs the orchestrator and its collaborators from cfg.
// Previously persisted paused executions are restored as part of
// construction. Callers must Close the engine when done.
func BuildEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	logLevel := cfg.Log.Level
	if GetVerbose() {
		logLevel = "debug"
	}
	if GetQuiet() {
		logLevel = "error"
	}
	logger := log.New(&log.Config{
		Level:     logLevel,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.Source,
	})
	slog.SetDefault(logger)

	e := &Engine{Config: cfg, Logger: logger}

	store, err := buildStateStore(cfg, e)
	if err != nil {
		return nil, err
	}

	version, _, _ := GetVersion()
	provider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    "baton",
		ServiceVersion: version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.provider = provider

	runner := shell.New(shell.Config{
		WorkingDir: cfg.Shell.WorkingDir,
		Env:        cfg.Shell.Env,
		Timeout:    cfg.Shell.Timeout,
	})

	opts := []workflow.Option{
		workflow.WithCommandRunner(runner),
		workflow.WithLogger(log.WithComponent(logger, "orchestrator")),
		workflow.WithParallelConcurrency(cfg.Engine.ParallelConcurrency),
		workflow.WithMaxNestingDepth(cfg.Engine.MaxNestingDepth),
		workflow.WithStaleThreshold(cfg.Engine.StaleThreshold),
	}
	if store != nil {
		opts = append(opts, workflow.WithStateStore(store))
	}
	if provider != nil {
		opts = append(opts, workflow.WithTracer(provider.Tracer("baton/orchestrator")))
	}

	orch, err := workflow.New(opts...)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.Orchestrator = orch

	if err := e.loadDefinitions(); err != nil {
		e.Close(ctx)
		return nil, err
	}

	return e, nil
}

// buildStateStore creates the configured paused-execution store.
func buildStateStore(cfg *config.Config, e *Engine) (workflow.StateStore, error) {
	switch cfg.State.Backend {
	case config.BackendSQLite:
		path, err := cfg.StatePath()
		if err != nil {
			return nil, err
		}
		store, err := state.NewSQLiteStore(state.SQLiteConfig{Path: path, WAL: cfg.State.WAL})
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return store, nil
	default:
		dir, err := cfg.StateDir()
		if err != nil {
			return nil, err
		}
		return state.NewFileStore(dir)
	}
}

// loadDefinitions registers every definition from the configured directory
// so subworkflow references resolve. A missing or unset directory is fine;
// the run command can still execute a file passed on the command line.
func (e *Engine) loadDefinitions() error {
	dir := e.Config.Definitions.Dir
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		wf, err := workflow.LoadDefinitionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			e.Logger.Warn("skipping definition", "file", entry.Name(), "error", err)
			continue
		}
		if err := e.Orchestrator.StoreWorkflow(wf); err != nil {
			e.Logger.Warn("skipping definition", "file", entry.Name(), "error", err)
		}
	}
	return nil
}

// IsDefinitionFile reports whether a file name looks like a workflow
// definition.
func IsDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Close flushes traces and releases stores.
func (e *Engine) Close(ctx context.Context) {
	if e.provider != nil {
		if err := e.provider.Shutdown(ctx); err != nil {
			e.Logger.Warn("failed to shut down tracing", "error", err)
		}
	}
	for _, closeFn := range e.closers {
		if err := closeFn(); err != nil {
			e.Logger.Warn("failed to close store", "error", err)
		}
	}
}
