package workflow

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/metrics"
	"github.com/tombee/baton/internal/tracing"
	"github.com/tombee/baton/pkg/errors"
)

// dispatchStep routes one step to its executor. It returns the results the
// step produced, or a structural error that aborts the run. Command
// failures are not structural: they come back as failed results and a nil
// error.
//
// ec is the context the step evaluates against. At the top level it is the
// execution's own context; inside parallel groups each child receives an
// isolated snapshot.
func (o *Orchestrator) dispatchStep(ctx context.Context, exec *Execution, ec *ExecutionContext, step Step, index int, callStack []string) ([]StepResult, error) {
	ctx, span := tracing.StartStep(ctx, o.tracer, index, string(step.Type))
	defer span.End()

	var (
		results []StepResult
		err     error
	)
	switch step.Type {
	case StepTypeCommand:
		results = o.executeCommand(ctx, exec, step, index)
	case StepTypePrompt:
		results = o.executePrompt(exec, step, index)
	case StepTypeParallel:
		results, err = o.executeParallel(ctx, exec, ec, step, index, callStack)
	case StepTypeConditional:
		results, err = o.executeConditional(ctx, exec, ec, step, index, callStack)
	case StepTypeSubworkflow:
		results, err = o.executeSubworkflow(ctx, exec, step, index, callStack)
	default:
		err = &errors.InvalidStepError{
			Index:   index,
			Type:    string(step.Type),
			Message: "unknown step type",
		}
	}

	span.RecordError(err)
	return results, err
}

// executeCommand runs a command step through the configured runner. A
// failed command is recorded as a failed result; the run continues unless
// the workflow opts into halt_on_failure.
func (o *Orchestrator) executeCommand(ctx context.Context, exec *Execution, step Step, index int) []StepResult {
	o.logger.Debug("running command step",
		"execution_id", exec.ID,
		"step_index", index)

	start := time.Now()
	res := o.runner.Run(ctx, step.Command)
	duration := time.Since(start)

	log.LogStepEvent(o.logger, &log.StepEvent{
		ExecutionID: exec.ID,
		StepIndex:   index,
		StepType:    string(StepTypeCommand),
		Success:     res.Success,
		DurationMs:  duration.Milliseconds(),
		Error:       res.Error,
	})
	metrics.RecordStep("command", res.Success, duration)

	return []StepResult{{
		StepIndex: index,
		Success:   res.Success,
		Output:    res.Output,
		Error:     res.Error,
		Timestamp: time.Now(),
		Duration:  duration,
	}}
}

// executePrompt records an informational message. Prompt steps execute
// nothing and never fail.
func (o *Orchestrator) executePrompt(exec *Execution, step Step, index int) []StepResult {
	o.logger.Info("prompt",
		"execution_id", exec.ID,
		"step_index", index,
		"message", step.Message)
	metrics.RecordStep("prompt", true, 0)

	return []StepResult{{
		StepIndex: index,
		Success:   true,
		Output:    step.Message,
		Timestamp: time.Now(),
	}}
}

// executeParallel runs the group's children concurrently, bounded by the
// orchestrator's concurrency cap. The semaphore is group-local, so nested
// groups cannot starve each other. Each child evaluates against its own
// snapshot of ec; siblings never observe each other's variable writes.
//
// Results are concatenated in completion order, not declaration order.
// A structural error in any child cancels the remaining siblings and
// propagates to the parent.
func (o *Orchestrator) executeParallel(ctx context.Context, exec *Execution, ec *ExecutionContext, step Step, index int, callStack []string) ([]StepResult, error) {
	type childOutcome struct {
		results []StepResult
		err     error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	sem := make(chan struct{}, o.maxParallel)
	outcomes := make(chan childOutcome, len(step.Steps))

	for i, child := range step.Steps {
		go func(childIndex int, child Step) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes <- childOutcome{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			// A sibling may have failed while this child waited.
			select {
			case <-ctx.Done():
				outcomes <- childOutcome{err: ctx.Err()}
				return
			default:
			}

			results, err := o.dispatchStep(ctx, exec, ec.snapshot(), child, childIndex, callStack)
			if err != nil {
				cancel()
			}
			outcomes <- childOutcome{results: results, err: err}
		}(i, child)
	}

	collected := make([]StepResult, 0, len(step.Steps))
	var errs []error
	for range step.Steps {
		outcome := <-outcomes
		if outcome.err != nil {
			errs = append(errs, outcome.err)
			continue
		}
		collected = append(collected, outcome.results...)
	}

	if len(errs) > 0 {
		metrics.RecordStep("parallel", false, time.Since(start))
		// Prefer the original failure over the context errors of the
		// siblings it cancelled.
		for _, err := range errs {
			if !errors.Is(err, context.Canceled) {
				return nil, err
			}
		}
		return nil, errs[0]
	}

	metrics.RecordStep("parallel", true, time.Since(start))
	return collected, nil
}

// executeConditional evaluates the condition once, records the decision in
// the audit trail, and dispatches exactly one branch. The chosen branch
// keeps the conditional's own index: from the outside the step behaves
// like whichever branch ran.
func (o *Orchestrator) executeConditional(ctx context.Context, exec *Execution, ec *ExecutionContext, step Step, index int, callStack []string) ([]StepResult, error) {
	branch := step.Condition.Evaluate(ec)
	ec.recordBranch(step.Condition.Expression, strconv.FormatBool(branch))

	o.logger.Debug("conditional evaluated",
		"execution_id", exec.ID,
		"step_index", index,
		"expression", step.Condition.Expression,
		"branch", branch)
	metrics.RecordStep("conditional", true, 0)

	target := step.Then
	if !branch {
		target = step.Else
	}
	return o.dispatchStep(ctx, exec, ec, *target, index, callStack)
}

// executeSubworkflow resolves the referenced workflow and runs it to
// completion on this orchestrator, guarded against reference cycles and
// excessive nesting. The child run's results fold into the parent's,
// keeping their child-local step indexes.
func (o *Orchestrator) executeSubworkflow(ctx context.Context, exec *Execution, step Step, index int, callStack []string) ([]StepResult, error) {
	chain := make([]string, 0, len(callStack)+1)
	chain = append(chain, callStack...)
	chain = append(chain, exec.Workflow.ID)

	if slices.Contains(chain, step.WorkflowID) {
		if len(chain) == 1 {
			return nil, &errors.CycleError{WorkflowID: step.WorkflowID}
		}
		return nil, &errors.CycleError{WorkflowID: step.WorkflowID, Path: chain}
	}
	if len(chain) >= o.maxDepth {
		return nil, &errors.ExecutionError{
			ExecutionID: exec.ID,
			Reason:      fmt.Sprintf("sub-workflow nesting exceeds %d levels", o.maxDepth),
		}
	}

	sub, err := o.LoadWorkflow(step.WorkflowID)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("delegating to sub-workflow",
		"execution_id", exec.ID,
		"step_index", index,
		"workflow_id", step.WorkflowID)

	start := time.Now()
	res := o.startRun(ctx, sub, runOptions{}, chain)
	metrics.RecordStep("subworkflow", res.Status != ResultFailure, time.Since(start))

	if res.Status == ResultFailure {
		return nil, res.Err
	}
	return res.Results, nil
}
