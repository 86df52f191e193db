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

// Package state provides durable stores for paused execution snapshots.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertion.
var _ workflow.StateStore = (*FileStore)(nil)

// FileStore keeps one JSON file per paused execution, named by execution
// id. Files are human-readable on purpose: a paused run should be easy to
// inspect with nothing but cat.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes or replaces the snapshot for state.ExecutionID.
func (s *FileStore) Save(ctx context.Context, state *workflow.WorkflowState) error {
	if err := checkID(state.ExecutionID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path(state.ExecutionID), data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for the given execution. Deleting a missing
// snapshot is not an error.
func (s *FileStore) Delete(ctx context.Context, executionID string) error {
	if err := checkID(executionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(executionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// LoadAll returns every readable snapshot in the directory. Files that
// cannot be read or decoded are skipped with a warning, so one corrupt
// snapshot never blocks the rest from being restored.
func (s *FileStore) LoadAll(ctx context.Context) ([]*workflow.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*workflow.WorkflowState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable snapshot", "file", entry.Name(), "error", err)
			continue
		}

		var state workflow.WorkflowState
		if err := json.Unmarshal(data, &state); err != nil {
			slog.Warn("skipping corrupt snapshot", "file", entry.Name(), "error", err)
			continue
		}
		if state.ExecutionID == "" {
			slog.Warn("skipping snapshot without execution id", "file", entry.Name())
			continue
		}
		states = append(states, &state)
	}

	return states, nil
}

// Dir returns the directory snapshots are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// path returns the snapshot file path for an execution.
func (s *FileStore) path(executionID string) string {
	return filepath.Join(s.dir, executionID+".json")
}

// checkID rejects execution ids that would escape the state directory.
func checkID(executionID string) error {
	if executionID == "" {
		return fmt.Errorf("execution id is required")
	}
	if strings.ContainsAny(executionID, `/\`) || executionID == "." || executionID == ".." {
		return fmt.Errorf("execution id %q is not a valid file name", executionID)
	}
	return nil
}
