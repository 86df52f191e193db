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

// Package watch keeps a workflow registry in sync with a directory of
// YAML definitions. It loads the directory once at startup and reloads it
// when files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tombee/baton/pkg/workflow"
)

// Registry receives loaded workflow definitions. *workflow.Orchestrator
// satisfies it.
type Registry interface {
	StoreWorkflow(wf *workflow.Workflow) error
}

// Config defines the watch service configuration.
type Config struct {
	// Dir is the directory scanned for *.yaml and *.yml definitions.
	// The scan is flat; subdirectories are ignored.
	Dir string

	// DebounceWindow is how long to wait for further events before
	// reloading. Editors often emit several events per save.
	// Default: 500ms
	DebounceWindow time.Duration

	// MaxReloadsPerMinute limits how often changes trigger a reload.
	// Zero means no limit. A rate-limited change is dropped, not queued;
	// the next event after the window picks it up.
	MaxReloadsPerMinute int
}

// Service watches a definitions directory and reloads it into a registry.
type Service struct {
	dir      string
	registry Registry
	watcher  *fsnotify.Watcher
	limiter  *rate.Limiter
	debounce time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates a watch service over cfg.Dir. The directory must
// exist.
func NewService(cfg Config, registry Registry) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("a registry is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("a definitions directory is required")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	debounce := cfg.DebounceWindow
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	var limiter *rate.Limiter
	if cfg.MaxReloadsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxReloadsPerMinute)/60.0), 1)
	}

	return &Service{
		dir:      dir,
		registry: registry,
		watcher:  fsw,
		limiter:  limiter,
		debounce: debounce,
		logger:   slog.Default().With(slog.String("component", "watch"), slog.String("dir", dir)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start performs the initial load and begins watching for changes.
func (s *Service) Start(ctx context.Context) error {
	loaded, err := s.LoadDir()
	if err != nil {
		return err
	}
	s.logger.Info("definitions loaded", "count", loaded)

	go s.eventLoop(ctx)
	return nil
}

// Stop stops the watcher and releases resources.
func (s *Service) Stop() error {
	close(s.stopCh)
	<-s.doneCh
	return s.watcher.Close()
}

// LoadDir scans the directory and registers every parseable definition.
// It returns how many were registered. Files that fail to parse are
// skipped with a warning; the error return is reserved for I/O failures
// on the directory itself.
func (s *Service) LoadDir() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isDefinition(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		wf, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			s.logger.Warn("skipping definition", "file", entry.Name(), "error", err)
			continue
		}
		if err := s.registry.StoreWorkflow(wf); err != nil {
			s.logger.Warn("skipping definition", "file", entry.Name(), "error", err)
			continue
		}
		loaded++
	}

	setWorkflowsLoaded(loaded)
	return loaded, nil
}

// eventLoop debounces filesystem events into reloads.
func (s *Service) eventLoop(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Info("watch stopped")
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			eventType := classify(event.Op)
			if eventType == "" || !isDefinition(filepath.Base(event.Name)) {
				continue
			}
			recordEvent(eventType)
			s.logger.Debug("definition changed", "file", filepath.Base(event.Name), "event", eventType)
			timer.Reset(s.debounce)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watch error", "error", err)
		case <-timer.C:
			s.reload()
		}
	}
}

// reload reruns LoadDir, subject to the rate limit.
func (s *Service) reload() {
	if s.limiter != nil && !s.limiter.Allow() {
		recordReload("rate_limited")
		s.logger.Warn("reload rate limited, dropping change")
		return
	}

	loaded, err := s.LoadDir()
	if err != nil {
		recordReload("error")
		s.logger.Error("reload failed", "error", err)
		return
	}

	recordReload("success")
	s.logger.Info("definitions reloaded", "count", loaded)
}

// isDefinition reports whether a file name looks like a workflow
// definition.
func isDefinition(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// classify maps fsnotify operations to event type names. Chmod-only
// events return "".
func classify(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Write):
		return "modified"
	case op.Has(fsnotify.Remove):
		return "deleted"
	case op.Has(fsnotify.Rename):
		return "renamed"
	default:
		return ""
	}
}
