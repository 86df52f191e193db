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

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertion.
var _ workflow.StateStore = (*SQLiteStore)(nil)

// SQLiteStore keeps snapshots in a single SQLite database. It suits
// deployments where many paused runs accumulate and the one-file-per-run
// layout of FileStore becomes unwieldy.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains SQLite connection configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// NewSQLiteStore opens or creates the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *SQLiteStore) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",  // 5 second timeout for lock contention
		"PRAGMA synchronous=NORMAL", // Balance between performance and durability
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate runs database migrations. The snapshot itself is stored as a
// JSON blob; workflow_id and paused_at are denormalized for inspection
// with plain SQL.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS paused_executions (
			execution_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			paused_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paused_executions_paused_at ON paused_executions(paused_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save writes or replaces the snapshot for state.ExecutionID.
func (s *SQLiteStore) Save(ctx context.Context, state *workflow.WorkflowState) error {
	if state.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}

	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	workflowID := ""
	if state.Workflow != nil {
		workflowID = state.Workflow.ID
	}

	query := `
		INSERT INTO paused_executions (execution_id, workflow_id, snapshot, paused_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			snapshot = excluded.snapshot,
			paused_at = excluded.paused_at
	`
	_, err = s.db.ExecContext(ctx, query,
		state.ExecutionID, workflowID, string(snapshot),
		state.PausedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for the given execution. Deleting a missing
// snapshot is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, executionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM paused_executions WHERE execution_id = ?`, executionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// LoadAll returns every readable snapshot, oldest pause first. Rows that
// fail to decode are skipped with a warning.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*workflow.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, snapshot FROM paused_executions ORDER BY paused_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	defer rows.Close()

	var states []*workflow.WorkflowState
	for rows.Next() {
		var executionID, snapshot string
		if err := rows.Scan(&executionID, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		var state workflow.WorkflowState
		if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
			slog.Warn("skipping corrupt snapshot", "execution_id", executionID, "error", err)
			continue
		}
		states = append(states, &state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return states, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
