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

package log

import (
	"log/slog"
)

// RunEvent describes one lifecycle transition of an execution for logging.
type RunEvent struct {
	// ExecutionID identifies the run.
	ExecutionID string

	// WorkflowID is the workflow the run belongs to.
	WorkflowID string

	// Event is the transition name (e.g., "completed", "paused", "failed").
	Event string

	// DurationMs is how long the leg of the run took, in milliseconds.
	DurationMs int64

	// Error is the failure message, if any.
	Error string
}

// StepEvent describes the outcome of a single step for logging.
type StepEvent struct {
	// ExecutionID identifies the run the step belongs to.
	ExecutionID string

	// StepIndex is the step's position in the workflow.
	StepIndex int

	// StepType is the step's type (command, prompt, ...).
	StepType string

	// Success reports whether the step succeeded.
	Success bool

	// DurationMs is the step duration in milliseconds.
	DurationMs int64

	// Error is the failure message, if any.
	Error string
}

// LogRunEvent logs a run lifecycle event. Failures log at error level,
// everything else at info.
func LogRunEvent(logger *slog.Logger, ev *RunEvent) {
	attrs := []any{
		EventKey, ev.Event,
		ExecutionIDKey, ev.ExecutionID,
		WorkflowKey, ev.WorkflowID,
	}
	if ev.DurationMs > 0 {
		attrs = append(attrs, DurationKey, ev.DurationMs)
	}
	if ev.Error != "" {
		attrs = append(attrs, "error", ev.Error)
	}

	level := slog.LevelInfo
	message := "run " + ev.Event
	if ev.Event == "failed" {
		level = slog.LevelError
	}

	logger.Log(nil, level, message, attrs...)
}

// LogStepEvent logs a step outcome. Failed steps log at warn level; the
// run decides whether a failure is fatal, so this is never an error.
func LogStepEvent(logger *slog.Logger, ev *StepEvent) {
	attrs := []any{
		EventKey, "step_finished",
		ExecutionIDKey, ev.ExecutionID,
		StepIndexKey, ev.StepIndex,
		StepTypeKey, ev.StepType,
		"success", ev.Success,
	}
	if ev.DurationMs > 0 {
		attrs = append(attrs, DurationKey, ev.DurationMs)
	}
	if ev.Error != "" {
		attrs = append(attrs, "error", ev.Error)
	}

	level := slog.LevelInfo
	message := "step finished"
	if !ev.Success {
		level = slog.LevelWarn
		message = "step failed"
	}

	logger.Log(nil, level, message, attrs...)
}
