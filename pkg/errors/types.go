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

package errors

import (
	"fmt"
	"strings"
)

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "execution", "snapshot")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStepError represents a malformed or unsupported workflow step.
// Use this for parse-time and validation failures on step definitions.
type InvalidStepError struct {
	// Index is the position of the step in its step sequence (-1 if unknown)
	Index int

	// Type is the declared step type, if any
	Type string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the step
	Suggestion string
}

// Error implements the error interface.
func (e *InvalidStepError) Error() string {
	switch {
	case e.Index >= 0 && e.Type != "":
		return fmt.Sprintf("invalid %s step at index %d: %s", e.Type, e.Index, e.Message)
	case e.Index >= 0:
		return fmt.Sprintf("invalid step at index %d: %s", e.Index, e.Message)
	case e.Type != "":
		return fmt.Sprintf("invalid %s step: %s", e.Type, e.Message)
	default:
		return fmt.Sprintf("invalid step: %s", e.Message)
	}
}

// ExecutionError represents a structural failure during workflow execution.
// Use this for unexpected runtime errors that abort a run; ordinary command
// failures are recorded as step results, not errors.
type ExecutionError struct {
	// ExecutionID identifies the run that failed (may be empty before a run starts)
	ExecutionID string

	// Reason explains what went wrong
	Reason string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("execution %s failed: %s", e.ExecutionID, e.Reason)
	}
	return fmt.Sprintf("execution failed: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// CycleError represents a sub-workflow reference cycle.
// Use this when a workflow (transitively) delegates back to itself.
type CycleError struct {
	// WorkflowID is the workflow whose reference closed the cycle
	WorkflowID string

	// Path is the chain of workflow ids leading to the cycle, outermost first
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("workflow cycle detected: %s references itself", e.WorkflowID)
	}
	return fmt.Sprintf("workflow cycle detected: %s -> %s", strings.Join(e.Path, " -> "), e.WorkflowID)
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "state.backend", "shell.timeout")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
