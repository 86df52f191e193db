// Package workflow provides a runbook execution engine: ordered sequences of
// typed steps with durable pause and resume.
//
// A Workflow is an immutable ordered list of steps. Step variants:
//   - command: an atomic unit of work delegated to a CommandRunner
//   - prompt: an informational message recorded as output
//   - parallel: a group of steps executed concurrently
//   - conditional: a condition selecting exactly one of two branches
//   - subworkflow: delegation to another registered workflow
//
// The Orchestrator walks a workflow's top-level steps sequentially, collects
// one StepResult per leaf step reached, and produces a WorkflowResult. Runs
// can be paused at step boundaries, snapshotted through a StateStore, and
// resumed later, including across process restarts.
package workflow

import (
	"fmt"

	"github.com/tombee/baton/pkg/errors"
)

// ExecutionState represents the lifecycle state of an execution.
type ExecutionState string

// Execution states. A run starts in running; paused runs hold a durable
// snapshot until resumed or cancelled.
const (
	StateRunning   ExecutionState = "running"
	StatePaused    ExecutionState = "paused"
	StateCompleted ExecutionState = "completed"
	StateFailed    ExecutionState = "failed"
	StateCancelled ExecutionState = "cancelled"
)

// Valid states for validation
var validStates = map[ExecutionState]bool{
	StateRunning:   true,
	StatePaused:    true,
	StateCompleted: true,
	StateFailed:    true,
	StateCancelled: true,
}

// IsValid checks if a state is valid.
func (s ExecutionState) IsValid() bool {
	return validStates[s]
}

// IsTerminal returns true if the state is terminal (no further transitions).
func (s ExecutionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Workflow is an ordered, named sequence of steps. Workflows are immutable
// once constructed: the Orchestrator only borrows them during runs and takes
// a deep copy when a paused execution is snapshotted.
type Workflow struct {
	// ID uniquely identifies the workflow in the registry
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable workflow name
	Name string `yaml:"name" json:"name"`

	// Steps is the ordered top-level step sequence
	Steps []Step `yaml:"steps" json:"steps"`

	// HaltOnFailure stops the run when a top-level command step fails.
	// The default (false) records the failure and continues; that behavior
	// is deliberate, so halting must be asked for explicitly.
	HaltOnFailure bool `yaml:"halt_on_failure,omitempty" json:"halt_on_failure,omitempty"`
}

// Validate checks the workflow and all of its steps.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return &errors.InvalidStepError{
			Index:      -1,
			Message:    "workflow id is required",
			Suggestion: "set id, or set name and let the id be derived from it",
		}
	}
	if len(w.Steps) == 0 {
		return &errors.InvalidStepError{
			Index:      -1,
			Message:    fmt.Sprintf("workflow %q has no steps", w.ID),
			Suggestion: "add at least one step",
		}
	}
	for i := range w.Steps {
		if err := w.Steps[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}

// clone returns a deep copy of the workflow.
func (w *Workflow) clone() *Workflow {
	out := &Workflow{
		ID:            w.ID,
		Name:          w.Name,
		HaltOnFailure: w.HaltOnFailure,
	}
	if len(w.Steps) > 0 {
		out.Steps = make([]Step, len(w.Steps))
		for i := range w.Steps {
			out.Steps[i] = w.Steps[i].clone()
		}
	}
	return out
}
