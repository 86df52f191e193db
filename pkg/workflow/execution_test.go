package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContextSnapshot_Isolated(t *testing.T) {
	parent := NewExecutionContext()
	parent.Variables["env"] = "production"
	parent.recordBranch("${env} == production", "true")

	child := parent.snapshot()
	child.Variables["env"] = "staging"
	child.Variables["extra"] = "value"
	child.recordBranch("false", "false")

	assert.Equal(t, "production", parent.Variables["env"])
	assert.NotContains(t, parent.Variables, "extra")
	assert.Len(t, parent.Branches, 1)
	assert.Len(t, child.Branches, 2)
}

func TestExecutionContextRecordBranch(t *testing.T) {
	ctx := NewExecutionContext()
	before := time.Now()
	ctx.recordBranch("${env} == production", "false")

	require.Len(t, ctx.Branches, 1)
	record := ctx.Branches[0]
	assert.Equal(t, "${env} == production", record.Expression)
	assert.Equal(t, "false", record.Branch)
	assert.False(t, record.DecidedAt.Before(before))
}

func TestWorkflowStateClone_DeepCopies(t *testing.T) {
	original := &WorkflowState{
		ExecutionID: "abc12345",
		Workflow: &Workflow{
			ID:    "release",
			Name:  "Release",
			Steps: []Step{NewCommandStep("echo a")},
		},
		CurrentStepIndex: 1,
		Results: []StepResult{
			{StepIndex: 0, Success: true, Output: "a"},
		},
		Context:  NewExecutionContext(),
		PausedAt: time.Now(),
	}
	original.Context.Variables["env"] = "production"

	copied := original.clone()
	copied.Workflow.Steps[0].Command = "echo changed"
	copied.Results[0].Output = "changed"
	copied.Context.Variables["env"] = "staging"

	assert.Equal(t, "echo a", original.Workflow.Steps[0].Command)
	assert.Equal(t, "a", original.Results[0].Output)
	assert.Equal(t, "production", original.Context.Variables["env"])

	assert.Equal(t, original.ExecutionID, copied.ExecutionID)
	assert.Equal(t, original.CurrentStepIndex, copied.CurrentStepIndex)
	assert.True(t, original.PausedAt.Equal(copied.PausedAt))
}

func TestExecutionStateClassification(t *testing.T) {
	terminal := []ExecutionState{StateCompleted, StateFailed, StateCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsValid(), s)
		assert.True(t, s.IsTerminal(), s)
	}

	live := []ExecutionState{StateRunning, StatePaused}
	for _, s := range live {
		assert.True(t, s.IsValid(), s)
		assert.False(t, s.IsTerminal(), s)
	}

	assert.False(t, ExecutionState("archived").IsValid())
}
