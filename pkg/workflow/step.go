package workflow

import (
	"fmt"

	"github.com/tombee/baton/pkg/errors"
)

// StepType identifies the variant of a workflow step.
type StepType string

// Step types supported by the engine. The set is closed: dispatch matches
// exhaustively and Validate rejects anything else.
const (
	// StepTypeCommand runs an atomic command through the CommandRunner.
	StepTypeCommand StepType = "command"
	// StepTypePrompt records an informational message; it always succeeds.
	StepTypePrompt StepType = "prompt"
	// StepTypeParallel runs its child steps concurrently.
	StepTypeParallel StepType = "parallel"
	// StepTypeConditional evaluates a condition and runs exactly one branch.
	StepTypeConditional StepType = "conditional"
	// StepTypeSubworkflow delegates to another registered workflow.
	StepTypeSubworkflow StepType = "subworkflow"
)

var validStepTypes = map[StepType]bool{
	StepTypeCommand:     true,
	StepTypePrompt:      true,
	StepTypeParallel:    true,
	StepTypeConditional: true,
	StepTypeSubworkflow: true,
}

// IsValid checks if a step type is one of the supported variants.
func (t StepType) IsValid() bool {
	return validStepTypes[t]
}

// Step is one unit of a workflow. It is a tagged union: Type selects the
// variant and only that variant's fields may be set. Nested steps (parallel
// children, conditional branches) are full Steps themselves, so groups and
// branches compose arbitrarily.
type Step struct {
	// Type selects the step variant (required)
	Type StepType `yaml:"type" json:"type"`

	// Command is the command specification for command steps
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Message is the informational text for prompt steps
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Steps are the children of a parallel group
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Condition gates a conditional step's branches
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Then is the branch taken when the condition evaluates true
	Then *Step `yaml:"then,omitempty" json:"then,omitempty"`

	// Else is the branch taken when the condition evaluates false
	Else *Step `yaml:"else,omitempty" json:"else,omitempty"`

	// WorkflowID references a registered workflow for subworkflow steps
	WorkflowID string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// NewCommandStep creates a command step.
func NewCommandStep(command string) Step {
	return Step{Type: StepTypeCommand, Command: command}
}

// NewPromptStep creates a prompt step.
func NewPromptStep(message string) Step {
	return Step{Type: StepTypePrompt, Message: message}
}

// NewParallelStep creates a parallel group from the given children.
func NewParallelStep(steps ...Step) Step {
	return Step{Type: StepTypeParallel, Steps: steps}
}

// NewConditionalStep creates a conditional step with both branches.
func NewConditionalStep(cond Condition, then, els Step) Step {
	return Step{Type: StepTypeConditional, Condition: &cond, Then: &then, Else: &els}
}

// NewSubworkflowStep creates a step that delegates to the workflow with the given id.
func NewSubworkflowStep(workflowID string) Step {
	return Step{Type: StepTypeSubworkflow, WorkflowID: workflowID}
}

// Validate checks that the step is a well-formed instance of its variant.
func (s *Step) Validate() error {
	return s.validate(-1)
}

// validate reports shape errors with the step's position when known.
// Nested steps are validated with index -1: they are addressed by their
// place in the tree, not by a global index.
func (s *Step) validate(index int) error {
	if s.Type == "" {
		return &errors.InvalidStepError{
			Index:      index,
			Message:    "step type is required",
			Suggestion: "set type to one of: command, prompt, parallel, conditional, subworkflow",
		}
	}
	if !s.Type.IsValid() {
		return &errors.InvalidStepError{
			Index:      index,
			Message:    fmt.Sprintf("unknown step type %q", s.Type),
			Suggestion: "set type to one of: command, prompt, parallel, conditional, subworkflow",
		}
	}

	switch s.Type {
	case StepTypeCommand:
		if s.Command == "" {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "command must not be empty",
				Suggestion: "provide the command to run, e.g. \"echo hello\"",
			}
		}
	case StepTypePrompt:
		if s.Message == "" {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "message must not be empty",
				Suggestion: "provide the message to record",
			}
		}
	case StepTypeParallel:
		if len(s.Steps) == 0 {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "parallel group has no child steps",
				Suggestion: "add at least one child step to the group",
			}
		}
		for i := range s.Steps {
			if err := s.Steps[i].validate(-1); err != nil {
				return err
			}
		}
	case StepTypeConditional:
		if s.Condition == nil || s.Condition.Expression == "" {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "condition is required",
				Suggestion: "provide a condition expression, e.g. \"${env} == production\"",
			}
		}
		if s.Then == nil || s.Else == nil {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "both then and else branches are required",
				Suggestion: "use a prompt step as a no-op branch if one side has nothing to do",
			}
		}
		if err := s.Then.validate(-1); err != nil {
			return err
		}
		if err := s.Else.validate(-1); err != nil {
			return err
		}
	case StepTypeSubworkflow:
		if s.WorkflowID == "" {
			return &errors.InvalidStepError{
				Index:      index,
				Type:       string(s.Type),
				Message:    "workflow reference must not be empty",
				Suggestion: "set workflow to the id of a registered workflow",
			}
		}
	}

	// Cross-variant fields betray a malformed union even when the selected
	// variant itself is complete.
	if s.Type != StepTypeParallel && len(s.Steps) > 0 {
		return &errors.InvalidStepError{
			Index:      index,
			Type:       string(s.Type),
			Message:    "steps is only valid on parallel groups",
			Suggestion: "move the child steps into a parallel step",
		}
	}
	if s.Type != StepTypeConditional && (s.Condition != nil || s.Then != nil || s.Else != nil) {
		return &errors.InvalidStepError{
			Index:      index,
			Type:       string(s.Type),
			Message:    "condition, then and else are only valid on conditional steps",
			Suggestion: "change the step type to conditional",
		}
	}

	return nil
}

// clone returns a deep copy of the step.
func (s Step) clone() Step {
	out := s
	if len(s.Steps) > 0 {
		out.Steps = make([]Step, len(s.Steps))
		for i := range s.Steps {
			out.Steps[i] = s.Steps[i].clone()
		}
	}
	if s.Condition != nil {
		cond := s.Condition.clone()
		out.Condition = &cond
	}
	if s.Then != nil {
		then := s.Then.clone()
		out.Then = &then
	}
	if s.Else != nil {
		els := s.Else.clone()
		out.Else = &els
	}
	return out
}
