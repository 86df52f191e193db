package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/baton/pkg/errors"
)

// mockRunner and newTestOrchestrator are defined in orchestrator_test.go.

func TestParallel_AllChildrenComplete(t *testing.T) {
	o, runner := newTestOrchestrator(t)

	wf := &Workflow{
		ID: "fanout",
		Steps: []Step{
			NewParallelStep(
				NewCommandStep("echo a"),
				NewCommandStep("echo b"),
				NewCommandStep("echo c"),
			),
		},
	}

	res := o.ExecuteWorkflow(context.Background(), wf)

	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 3)

	var indexes []int
	var outputs []string
	for _, r := range res.Results {
		assert.True(t, r.Success)
		indexes = append(indexes, r.StepIndex)
		outputs = append(outputs, r.Output)
	}
	// Completion order is not guaranteed, only that every child reported.
	assert.ElementsMatch(t, []int{0, 1, 2}, indexes)
	assert.ElementsMatch(t, []string{"echo a", "echo b", "echo c"}, outputs)
	assert.ElementsMatch(t, []string{"echo a", "echo b", "echo c"}, runner.Calls())
}

// gaugeRunner tracks how many commands are in flight at once.
type gaugeRunner struct {
	inFlight atomic.Int32
	high     atomic.Int32
}

func (g *gaugeRunner) Run(ctx context.Context, command string) CommandResult {
	cur := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		high := g.high.Load()
		if cur <= high || g.high.CompareAndSwap(high, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return CommandResult{Success: true, Output: command}
}

func TestParallel_RespectsConcurrencyCap(t *testing.T) {
	runner := &gaugeRunner{}
	o, err := New(WithCommandRunner(runner), WithParallelConcurrency(2))
	require.NoError(t, err)

	group := NewParallelStep(
		NewCommandStep("one"),
		NewCommandStep("two"),
		NewCommandStep("three"),
		NewCommandStep("four"),
		NewCommandStep("five"),
		NewCommandStep("six"),
	)

	res := o.ExecuteWorkflow(context.Background(), &Workflow{ID: "capped", Steps: []Step{group}})

	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 6)
	assert.LessOrEqual(t, runner.high.Load(), int32(2))
}

func TestParallel_IsolatesVariableContext(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	ec := NewExecutionContext()
	ec.Variables["env"] = "production"
	exec := &Execution{
		ID:       "iso-1",
		Workflow: &Workflow{ID: "iso"},
		State:    StateRunning,
		Context:  ec,
	}

	group := NewParallelStep(
		NewConditionalStep(
			Condition{Expression: "${env} == production"},
			NewCommandStep("then-a"),
			NewCommandStep("else-a"),
		),
		NewConditionalStep(
			Condition{Expression: "${env} == production"},
			NewCommandStep("then-b"),
			NewCommandStep("else-b"),
		),
	)

	results, err := o.executeParallel(context.Background(), exec, ec, group, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Children resolved the parent's variables through their snapshots.
	var outputs []string
	for _, r := range results {
		outputs = append(outputs, r.Output)
	}
	assert.ElementsMatch(t, []string{"then-a", "then-b"}, outputs)

	// Their branch decisions landed in the snapshots, not the parent.
	assert.Empty(t, ec.Branches)
}

func TestParallel_StructuralFailureCancelsSiblings(t *testing.T) {
	o, runner := newTestOrchestrator(t)

	bomb := &Workflow{
		ID:            "bomb",
		HaltOnFailure: true,
		Steps:         []Step{NewCommandStep("boom")},
	}
	require.NoError(t, o.StoreWorkflow(bomb))

	releaseBoom := runner.block("boom")
	runner.block("slow") // never released, exits only through cancellation
	runner.failOn("boom", "kaboom")

	wf := &Workflow{
		ID: "cancelfan",
		Steps: []Step{
			NewParallelStep(
				NewSubworkflowStep("bomb"),
				NewCommandStep("slow"),
			),
		},
	}

	done := make(chan *WorkflowResult, 1)
	go func() {
		done <- o.ExecuteWorkflow(context.Background(), wf)
	}()

	// Both children are in flight before the bomb goes off.
	first, second := <-runner.started, <-runner.started
	require.ElementsMatch(t, []string{"boom", "slow"}, []string{first, second})
	close(releaseBoom)

	res := <-done
	require.Equal(t, ResultFailure, res.Status)

	var execErr *errors.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Contains(t, execErr.Reason, "halt_on_failure")

	assert.Equal(t, 1, runner.Cancelled())
}

func TestParallel_CommandFailureIsNotStructural(t *testing.T) {
	o, runner := newTestOrchestrator(t)
	runner.failOn("exit 1", "exit status 1")

	wf := &Workflow{
		ID: "mixed",
		Steps: []Step{
			NewParallelStep(NewCommandStep("exit 1"), NewCommandStep("echo b")),
		},
	}

	res := o.ExecuteWorkflow(context.Background(), wf)

	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 2)

	failed := 0
	for _, r := range res.Results {
		if !r.Success {
			failed++
			assert.Equal(t, "exit status 1", r.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestConditional_RunsExactlyOneBranch(t *testing.T) {
	wf := &Workflow{
		ID: "gate",
		Steps: []Step{
			NewConditionalStep(
				Condition{Expression: "${ready} == true"},
				NewCommandStep("go"),
				NewCommandStep("wait"),
			),
		},
	}

	o, runner := newTestOrchestrator(t)
	res := o.ExecuteWorkflow(context.Background(), wf,
		WithVariables(map[string]string{"ready": "true"}))
	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "go", res.Results[0].Output)
	assert.Equal(t, []string{"go"}, runner.Calls())

	o, runner = newTestOrchestrator(t)
	res = o.ExecuteWorkflow(context.Background(), wf,
		WithVariables(map[string]string{"ready": "false"}))
	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "wait", res.Results[0].Output)
	assert.Equal(t, []string{"wait"}, runner.Calls())
}

func TestConditional_RecordsBranchAudit(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	ec := NewExecutionContext()
	ec.Variables["ready"] = "true"
	exec := &Execution{
		ID:       "audit-1",
		Workflow: &Workflow{ID: "audit"},
		State:    StateRunning,
		Context:  ec,
	}

	step := NewConditionalStep(
		Condition{Expression: "${ready} == true"},
		NewPromptStep("yes"),
		NewPromptStep("no"),
	)

	results, err := o.executeConditional(context.Background(), exec, ec, step, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "yes", results[0].Output)
	// The branch inherits the conditional's own position.
	assert.Equal(t, 2, results[0].StepIndex)

	require.Len(t, ec.Branches, 1)
	assert.Equal(t, "${ready} == true", ec.Branches[0].Expression)
	assert.Equal(t, "true", ec.Branches[0].Branch)
	assert.False(t, ec.Branches[0].DecidedAt.IsZero())
}

func TestConditional_UnresolvedVariableTakesElse(t *testing.T) {
	o, runner := newTestOrchestrator(t)

	wf := &Workflow{
		ID: "unresolved",
		Steps: []Step{
			NewConditionalStep(
				Condition{Expression: "${missing} == yes"},
				NewCommandStep("then-cmd"),
				NewCommandStep("else-cmd"),
			),
		},
	}

	res := o.ExecuteWorkflow(context.Background(), wf)
	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "else-cmd", res.Results[0].Output)
	assert.Equal(t, []string{"else-cmd"}, runner.Calls())
}

func TestSubworkflow_InlinesChildResults(t *testing.T) {
	o, runner := newTestOrchestrator(t)

	child := &Workflow{
		ID:    "migrate",
		Steps: []Step{NewCommandStep("echo m1"), NewCommandStep("echo m2")},
	}
	require.NoError(t, o.StoreWorkflow(child))

	parent := &Workflow{
		ID: "deploy",
		Steps: []Step{
			NewCommandStep("echo a"),
			NewSubworkflowStep("migrate"),
			NewCommandStep("echo z"),
		},
	}

	res := o.ExecuteWorkflow(context.Background(), parent)

	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 4)

	var outputs []string
	for _, r := range res.Results {
		outputs = append(outputs, r.Output)
	}
	assert.Equal(t, []string{"echo a", "echo m1", "echo m2", "echo z"}, outputs)
	assert.Equal(t, []string{"echo a", "echo m1", "echo m2", "echo z"}, runner.Calls())
}

func TestSubworkflow_Unregistered(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	wf := &Workflow{ID: "caller", Steps: []Step{NewSubworkflowStep("ghost")}}

	res := o.ExecuteWorkflow(context.Background(), wf)
	require.Equal(t, ResultFailure, res.Status)

	var notFound *errors.NotFoundError
	require.ErrorAs(t, res.Err, &notFound)
	assert.Equal(t, "workflow", notFound.Resource)
	assert.Equal(t, "ghost", notFound.ID)
}

func TestSubworkflow_DirectCycle(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	wf := &Workflow{ID: "ouroboros", Steps: []Step{NewSubworkflowStep("ouroboros")}}
	require.NoError(t, o.StoreWorkflow(wf))

	res := o.ExecuteWorkflow(context.Background(), wf)
	require.Equal(t, ResultFailure, res.Status)

	var cycleErr *errors.CycleError
	require.ErrorAs(t, res.Err, &cycleErr)
	assert.Equal(t, "ouroboros", cycleErr.WorkflowID)
}

func TestSubworkflow_IndirectCycle(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	a := &Workflow{ID: "a", Steps: []Step{NewSubworkflowStep("b")}}
	b := &Workflow{ID: "b", Steps: []Step{NewSubworkflowStep("a")}}
	require.NoError(t, o.StoreWorkflow(a))
	require.NoError(t, o.StoreWorkflow(b))

	res := o.ExecuteWorkflow(context.Background(), a)
	require.Equal(t, ResultFailure, res.Status)

	var cycleErr *errors.CycleError
	require.ErrorAs(t, res.Err, &cycleErr)
	assert.Equal(t, "a", cycleErr.WorkflowID)
	assert.Equal(t, []string{"a", "b"}, cycleErr.Path)
}

func TestSubworkflow_DepthLimit(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithMaxNestingDepth(3))

	require.NoError(t, o.StoreWorkflow(&Workflow{ID: "d4", Steps: []Step{NewPromptStep("bottom")}}))
	require.NoError(t, o.StoreWorkflow(&Workflow{ID: "d3", Steps: []Step{NewSubworkflowStep("d4")}}))
	require.NoError(t, o.StoreWorkflow(&Workflow{ID: "d2", Steps: []Step{NewSubworkflowStep("d3")}}))
	d1 := &Workflow{ID: "d1", Steps: []Step{NewSubworkflowStep("d2")}}

	res := o.ExecuteWorkflow(context.Background(), d1)
	require.Equal(t, ResultFailure, res.Status)

	var execErr *errors.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Contains(t, execErr.Reason, "nesting exceeds 3")
}

func TestPrompt_EmitsMessageWithoutRunningCommands(t *testing.T) {
	o, runner := newTestOrchestrator(t)

	wf := &Workflow{
		ID:    "approval",
		Steps: []Step{NewPromptStep("Confirm the production deploy")},
	}

	res := o.ExecuteWorkflow(context.Background(), wf)

	require.Equal(t, ResultSuccess, res.Status)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "Confirm the production deploy", res.Results[0].Output)
	assert.Empty(t, runner.Calls())
}

func TestDispatchStep_UnknownType(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	exec := &Execution{
		ID:       "x",
		Workflow: &Workflow{ID: "x"},
		State:    StateRunning,
		Context:  NewExecutionContext(),
	}

	_, err := o.dispatchStep(context.Background(), exec, exec.Context, Step{Type: "teleport"}, 0, nil)
	require.Error(t, err)

	var stepErr *errors.InvalidStepError
	require.ErrorAs(t, err, &stepErr)
}
