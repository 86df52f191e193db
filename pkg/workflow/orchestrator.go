package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/metrics"
	"github.com/tombee/baton/internal/tracing"
	"github.com/tombee/baton/pkg/errors"
)

const (
	// DefaultParallelConcurrency caps how many children of a parallel
	// group run at once.
	DefaultParallelConcurrency = 3

	// DefaultMaxNestingDepth caps sub-workflow nesting. The cycle check
	// catches loops among registered workflows; the depth cap catches
	// chains that are merely too deep.
	DefaultMaxNestingDepth = 8

	// DefaultStaleThreshold is how long an execution may stay paused
	// before GetStaleWorkflows reports it.
	DefaultStaleThreshold = 24 * time.Hour
)

// CommandResult is the outcome a CommandRunner reports for one command.
type CommandResult struct {
	// Success reports whether the command succeeded
	Success bool

	// Output is the command's output text
	Output string

	// Error is the failure detail when Success is false
	Error string
}

// CommandRunner executes a single command to completion. The orchestrator
// treats commands as opaque text and a failed command as data, not as an
// error. Runners that need timeouts enforce them internally; the
// orchestrator imposes none and never interrupts a command in flight.
type CommandRunner interface {
	Run(ctx context.Context, command string) CommandResult
}

// StateStore persists snapshots of paused executions across process
// restarts.
type StateStore interface {
	// Save writes or replaces the snapshot for state.ExecutionID.
	Save(ctx context.Context, state *WorkflowState) error

	// Delete removes the snapshot for the given execution. Deleting a
	// missing snapshot is not an error.
	Delete(ctx context.Context, executionID string) error

	// LoadAll returns every readable snapshot. Implementations skip
	// snapshots they cannot decode rather than failing the whole load.
	LoadAll(ctx context.Context) ([]*WorkflowState, error)
}

// Orchestrator coordinates workflow executions: it walks top-level steps
// sequentially, fans out parallel groups, and tracks active and paused runs.
//
// The mutex guards bookkeeping only. No step executes while it is held, so
// pause, cancel and the query methods stay responsive during long-running
// commands. Pause and cancel are cooperative: they take effect at the next
// top-level step boundary and never interrupt a command in flight.
type Orchestrator struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	active    map[string]*Execution
	paused    map[string]*WorkflowState

	runner      CommandRunner
	store       StateStore
	logger      *slog.Logger
	tracer      trace.Tracer
	maxParallel int
	maxDepth    int
	staleAfter  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCommandRunner sets the runner used for command steps. Required.
func WithCommandRunner(runner CommandRunner) Option {
	return func(o *Orchestrator) {
		o.runner = runner
	}
}

// WithStateStore sets the store used to persist paused executions. Without
// one, pause and resume still work but snapshots do not survive restarts.
func WithStateStore(store StateStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer enables span emission for runs and steps.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithParallelConcurrency caps how many children of a parallel group run
// at once. The cap applies per group.
func WithParallelConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithMaxNestingDepth caps sub-workflow nesting depth.
func WithMaxNestingDepth(depth int) Option {
	return func(o *Orchestrator) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// WithStaleThreshold sets how long a pause may last before the execution
// counts as stale.
func WithStaleThreshold(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// New creates an Orchestrator. A CommandRunner is required; everything else
// has defaults. If a StateStore is configured, previously persisted paused
// executions are restored immediately and become visible to
// GetPausedWorkflows and ResumeWorkflow.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		workflows:   make(map[string]*Workflow),
		active:      make(map[string]*Execution),
		paused:      make(map[string]*WorkflowState),
		logger:      slog.Default(),
		maxParallel: DefaultParallelConcurrency,
		maxDepth:    DefaultMaxNestingDepth,
		staleAfter:  DefaultStaleThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		return nil, &errors.ConfigError{Key: "runner", Reason: "a CommandRunner is required"}
	}

	if err := o.restore(); err != nil {
		return nil, err
	}
	return o, nil
}

// restore loads persisted snapshots into the paused store. Malformed
// entries are skipped so one bad snapshot cannot block startup.
func (o *Orchestrator) restore() error {
	if o.store == nil {
		return nil
	}
	states, err := o.store.LoadAll(context.Background())
	if err != nil {
		metrics.RecordPersistenceError("LoadAll", metrics.ErrorTypeOf(err))
		return errors.Wrap(err, "restoring paused executions")
	}
	for _, ws := range states {
		if ws == nil || ws.ExecutionID == "" || ws.Workflow == nil {
			o.logger.Warn("skipping malformed snapshot during restore")
			continue
		}
		o.paused[ws.ExecutionID] = ws
	}
	if len(o.paused) > 0 {
		o.logger.Info("restored paused executions", "count", len(o.paused))
	}
	return nil
}

// runOptions collects per-run settings.
type runOptions struct {
	runID     string
	variables map[string]string
}

// RunOption configures a single execution.
type RunOption func(*runOptions)

// WithRunID overrides the generated execution id. Callers that need to
// address a run while it is in flight, to pause or cancel it, set the id
// up front.
func WithRunID(id string) RunOption {
	return func(ro *runOptions) {
		ro.runID = id
	}
}

// WithVariables seeds the execution context's variables.
func WithVariables(vars map[string]string) RunOption {
	return func(ro *runOptions) {
		if ro.variables == nil {
			ro.variables = make(map[string]string, len(vars))
		}
		for k, v := range vars {
			ro.variables[k] = v
		}
	}
}

// ExecuteWorkflow runs wf from its first step and blocks until the run
// reaches a terminal state or suspends. It always returns a result, never
// an error: structural failures come back as a ResultFailure result with
// Err set, and a run paused or cancelled mid-flight comes back as
// ResultPartial with the results accumulated so far.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf *Workflow, opts ...RunOption) *WorkflowResult {
	if wf == nil {
		return &WorkflowResult{
			Status: ResultFailure,
			Err:    &errors.ExecutionError{Reason: "no workflow provided"},
		}
	}
	if err := wf.Validate(); err != nil {
		return &WorkflowResult{Status: ResultFailure, Err: err}
	}

	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	return o.startRun(ctx, wf, ro, nil)
}

// startRun registers a new execution and walks it. callStack carries the
// chain of workflow ids leading here; it is nil for top-level runs and
// non-empty for runs started by subworkflow steps.
func (o *Orchestrator) startRun(ctx context.Context, wf *Workflow, ro runOptions, callStack []string) *WorkflowResult {
	id := ro.runID
	if id == "" {
		id = newExecutionID()
	}

	exec := &Execution{
		ID:        id,
		Workflow:  wf,
		State:     StateRunning,
		StartedAt: time.Now(),
		Context:   NewExecutionContext(),
	}
	for k, v := range ro.variables {
		exec.Context.Variables[k] = v
	}

	o.mu.Lock()
	if _, ok := o.active[id]; ok {
		o.mu.Unlock()
		return &WorkflowResult{
			Status:      ResultFailure,
			ExecutionID: id,
			Err:         &errors.ExecutionError{ExecutionID: id, Reason: "an execution with this id is already active"},
		}
	}
	if _, ok := o.paused[id]; ok {
		o.mu.Unlock()
		return &WorkflowResult{
			Status:      ResultFailure,
			ExecutionID: id,
			Err:         &errors.ExecutionError{ExecutionID: id, Reason: "an execution with this id is paused; resume or cancel it first"},
		}
	}
	o.active[id] = exec
	o.mu.Unlock()

	o.logger.Info("execution started",
		"execution_id", id,
		"workflow_id", wf.ID,
		"steps", len(wf.Steps))
	metrics.RecordRunStarted()

	ctx, span := tracing.StartRun(ctx, o.tracer, id, wf.ID)
	defer span.End()

	result := o.run(ctx, exec, callStack)
	span.RecordError(result.Err)
	return result
}

// ResumeWorkflow reinstates a paused execution and continues it from its
// saved top-level step. Like ExecuteWorkflow it always returns a result;
// an unknown execution id produces a ResultFailure carrying a
// *errors.NotFoundError.
func (o *Orchestrator) ResumeWorkflow(ctx context.Context, executionID string) *WorkflowResult {
	o.mu.Lock()
	ws, ok := o.paused[executionID]
	if !ok {
		o.mu.Unlock()
		return &WorkflowResult{
			Status:      ResultFailure,
			ExecutionID: executionID,
			Err:         &errors.NotFoundError{Resource: "paused execution", ID: executionID},
		}
	}
	delete(o.paused, executionID)

	// Keep the original start so summaries and duration metrics cover the
	// whole run. Snapshots written before the field existed carry a zero.
	startedAt := ws.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	exec := &Execution{
		ID:               ws.ExecutionID,
		Workflow:         ws.Workflow,
		CurrentStepIndex: ws.CurrentStepIndex,
		Results:          resultsCopy(ws.Results),
		State:            StateRunning,
		StartedAt:        startedAt,
		Context:          ws.Context,
	}
	if exec.Context == nil {
		exec.Context = NewExecutionContext()
	}
	if exec.Context.Variables == nil {
		exec.Context.Variables = make(map[string]string)
	}
	o.active[executionID] = exec
	o.mu.Unlock()

	// The in-memory move already happened; a failed durable delete is
	// logged rather than surfaced so the resume itself proceeds.
	if o.store != nil {
		if err := o.store.Delete(ctx, executionID); err != nil {
			o.logger.Error("failed to delete persisted snapshot",
				"execution_id", executionID,
				"error", err)
			metrics.RecordPersistenceError("Delete", metrics.ErrorTypeOf(err))
		}
	}

	o.logger.Info("execution resumed",
		"execution_id", executionID,
		"workflow_id", exec.Workflow.ID,
		"step_index", exec.CurrentStepIndex)
	metrics.RecordRunStarted()

	ctx, span := tracing.StartRun(ctx, o.tracer, executionID, exec.Workflow.ID)
	defer span.End()

	result := o.run(ctx, exec, nil)
	span.RecordError(result.Err)
	return result
}

// run walks the workflow's top-level steps from the execution's cursor.
// The loop holds the lock only at boundaries: to observe pause and cancel
// requests, read the next step, and append results. Dispatch itself runs
// unlocked.
func (o *Orchestrator) run(ctx context.Context, exec *Execution, callStack []string) *WorkflowResult {
	for {
		o.mu.Lock()
		switch exec.State {
		case StatePaused:
			return o.suspendLocked(exec)
		case StateCancelled:
			now := time.Now()
			exec.CompletedAt = &now
			delete(o.active, exec.ID)
			results := resultsCopy(exec.Results)
			o.mu.Unlock()
			log.LogRunEvent(o.logger, &log.RunEvent{
				ExecutionID: exec.ID,
				WorkflowID:  exec.Workflow.ID,
				Event:       "cancelled",
				DurationMs:  time.Since(exec.StartedAt).Milliseconds(),
			})
			metrics.RecordRunFinished("cancelled", time.Since(exec.StartedAt))
			return &WorkflowResult{Status: ResultPartial, ExecutionID: exec.ID, Results: results}
		}
		if exec.CurrentStepIndex >= len(exec.Workflow.Steps) {
			o.mu.Unlock()
			break
		}
		index := exec.CurrentStepIndex
		step := exec.Workflow.Steps[index]
		ec := exec.Context
		o.mu.Unlock()

		results, err := o.dispatchStep(ctx, exec, ec, step, index, callStack)

		o.mu.Lock()
		exec.Results = append(exec.Results, results...)
		if err == nil {
			exec.CurrentStepIndex++
		}
		halt := err == nil && exec.Workflow.HaltOnFailure && anyFailure(results)
		o.mu.Unlock()

		if err != nil {
			return o.finish(exec, StateFailed, err)
		}
		if halt {
			return o.finish(exec, StateFailed, &errors.ExecutionError{
				ExecutionID: exec.ID,
				Reason:      fmt.Sprintf("step %d failed and halt_on_failure is set", index),
			})
		}
	}

	return o.finish(exec, StateCompleted, nil)
}

// suspendLocked persists the snapshot of a pause-requested execution and
// only then publishes it to the paused store. Called with o.mu held;
// releases it. The ordering is load-bearing: the durable Save must land
// before the pause is visible to GetPausedWorkflows, otherwise a resume
// racing the write would run its Delete first and leave an orphaned
// snapshot to be resurrected on the next restart. While the write is in
// flight the execution stays in the active map, so a concurrent cancel is
// observed afterwards and wins: the durable copy is removed again and the
// run finishes cancelled.
func (o *Orchestrator) suspendLocked(exec *Execution) *WorkflowResult {
	now := time.Now()
	ws := &WorkflowState{
		ExecutionID:      exec.ID,
		Workflow:         exec.Workflow.clone(),
		CurrentStepIndex: exec.CurrentStepIndex,
		Results:          resultsCopy(exec.Results),
		Context:          exec.Context.snapshot(),
		StartedAt:        exec.StartedAt,
		PausedAt:         now,
	}
	results := resultsCopy(exec.Results)
	o.mu.Unlock()

	// Background context: the run's own context may be cancelled by now,
	// and losing the durable copy costs more than a late write.
	if o.store != nil {
		if err := o.store.Save(context.Background(), ws); err != nil {
			o.logger.Error("failed to persist paused execution",
				"execution_id", exec.ID,
				"error", err)
			metrics.RecordPersistenceError("Save", metrics.ErrorTypeOf(err))
		}
	}

	o.mu.Lock()
	if exec.State == StateCancelled {
		delete(o.active, exec.ID)
		o.mu.Unlock()

		if o.store != nil {
			if err := o.store.Delete(context.Background(), exec.ID); err != nil {
				o.logger.Error("failed to delete persisted snapshot",
					"execution_id", exec.ID,
					"error", err)
				metrics.RecordPersistenceError("Delete", metrics.ErrorTypeOf(err))
			}
		}
		log.LogRunEvent(o.logger, &log.RunEvent{
			ExecutionID: exec.ID,
			WorkflowID:  exec.Workflow.ID,
			Event:       "cancelled",
			DurationMs:  now.Sub(exec.StartedAt).Milliseconds(),
		})
		metrics.RecordRunFinished("cancelled", now.Sub(exec.StartedAt))
		return &WorkflowResult{Status: ResultPartial, ExecutionID: exec.ID, Results: results}
	}
	o.paused[exec.ID] = ws
	delete(o.active, exec.ID)
	o.mu.Unlock()

	log.LogRunEvent(o.logger, &log.RunEvent{
		ExecutionID: exec.ID,
		WorkflowID:  exec.Workflow.ID,
		Event:       "paused",
		DurationMs:  now.Sub(exec.StartedAt).Milliseconds(),
	})
	metrics.RecordRunFinished("paused", now.Sub(exec.StartedAt))

	return &WorkflowResult{Status: ResultPartial, ExecutionID: exec.ID, Results: results}
}

// finish records a terminal state and builds the run's result.
func (o *Orchestrator) finish(exec *Execution, state ExecutionState, err error) *WorkflowResult {
	now := time.Now()
	o.mu.Lock()
	exec.State = state
	exec.CompletedAt = &now
	delete(o.active, exec.ID)
	results := resultsCopy(exec.Results)
	o.mu.Unlock()

	duration := now.Sub(exec.StartedAt)
	if state == StateCompleted {
		log.LogRunEvent(o.logger, &log.RunEvent{
			ExecutionID: exec.ID,
			WorkflowID:  exec.Workflow.ID,
			Event:       "completed",
			DurationMs:  duration.Milliseconds(),
		})
		metrics.RecordRunFinished("completed", duration)
		return &WorkflowResult{Status: ResultSuccess, ExecutionID: exec.ID, Results: results}
	}

	log.LogRunEvent(o.logger, &log.RunEvent{
		ExecutionID: exec.ID,
		WorkflowID:  exec.Workflow.ID,
		Event:       "failed",
		DurationMs:  duration.Milliseconds(),
		Error:       err.Error(),
	})
	metrics.RecordRunFinished("failed", duration)
	return &WorkflowResult{Status: ResultFailure, ExecutionID: exec.ID, Results: results, Err: err}
}

// PauseWorkflow requests a pause of an active execution. It is a no-op for
// unknown ids and for executions that are not running. The pause takes
// effect at the next top-level step boundary: the in-flight step finishes,
// its results are kept, and only then is the snapshot taken, persisted and
// made visible to GetPausedWorkflows.
func (o *Orchestrator) PauseWorkflow(executionID string) {
	o.mu.Lock()
	exec, ok := o.active[executionID]
	if !ok || exec.State != StateRunning {
		o.mu.Unlock()
		return
	}
	exec.State = StatePaused
	o.mu.Unlock()

	o.logger.Info("pause requested", "execution_id", executionID)
}

// CancelWorkflow cancels an execution wherever it lives. For active runs
// the cancellation is cooperative: the in-flight step finishes and the run
// returns a partial result at the next boundary, with no snapshot kept.
// For paused runs the snapshot and its durable copy are removed. Unknown
// ids are a no-op. The only error is a failed durable delete.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, executionID string) error {
	o.mu.Lock()
	if exec, ok := o.active[executionID]; ok {
		exec.State = StateCancelled
		delete(o.active, executionID)
		o.mu.Unlock()
		o.logger.Info("cancellation requested", "execution_id", executionID)
		return nil
	}
	if _, ok := o.paused[executionID]; ok {
		delete(o.paused, executionID)
		o.mu.Unlock()
		o.logger.Info("paused execution cancelled", "execution_id", executionID)
		if o.store != nil {
			if err := o.store.Delete(ctx, executionID); err != nil {
				metrics.RecordPersistenceError("Delete", metrics.ErrorTypeOf(err))
				return errors.Wrapf(err, "deleting snapshot for %s", executionID)
			}
		}
		return nil
	}
	o.mu.Unlock()
	return nil
}

// StoreWorkflow registers a workflow so subworkflow steps and LoadWorkflow
// can find it by id. Registering an id again replaces the previous
// definition; in-flight runs keep the copy they started with.
func (o *Orchestrator) StoreWorkflow(wf *Workflow) error {
	if wf == nil {
		return &errors.InvalidStepError{Index: -1, Message: "no workflow provided"}
	}
	if err := wf.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.workflows[wf.ID] = wf
	o.mu.Unlock()

	o.logger.Debug("workflow registered", "workflow_id", wf.ID, "steps", len(wf.Steps))
	return nil
}

// LoadWorkflow returns the registered workflow with the given id.
func (o *Orchestrator) LoadWorkflow(workflowID string) (*Workflow, error) {
	o.mu.RLock()
	wf, ok := o.workflows[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: workflowID}
	}
	return wf, nil
}

// Workflows returns the registered workflows sorted by id.
func (o *Orchestrator) Workflows() []*Workflow {
	o.mu.RLock()
	out := make([]*Workflow, 0, len(o.workflows))
	for _, wf := range o.workflows {
		out = append(out, wf)
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetPausedWorkflows returns a snapshot of every paused execution, oldest
// pause first. The returned states are deep copies.
func (o *Orchestrator) GetPausedWorkflows() []*WorkflowState {
	o.mu.RLock()
	out := make([]*WorkflowState, 0, len(o.paused))
	for _, ws := range o.paused {
		out = append(out, ws.clone())
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PausedAt.Before(out[j].PausedAt) })
	return out
}

// GetStaleWorkflows returns paused executions whose pause is strictly older
// than the stale threshold, oldest first. An execution paused exactly at
// the threshold is not yet stale.
func (o *Orchestrator) GetStaleWorkflows() []*WorkflowState {
	cutoff := time.Now().Add(-o.staleAfter)

	o.mu.RLock()
	out := make([]*WorkflowState, 0)
	for _, ws := range o.paused {
		if ws.PausedAt.Before(cutoff) {
			out = append(out, ws.clone())
		}
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PausedAt.Before(out[j].PausedAt) })
	return out
}

// GetWorkflowSummary returns a progress view over an active or paused
// execution. Terminal executions are not retained, so looking one up
// returns a *errors.NotFoundError.
func (o *Orchestrator) GetWorkflowSummary(executionID string) (*ExecutionSummary, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if exec, ok := o.active[executionID]; ok {
		completed, failed := countOutcomes(exec.Results)
		return &ExecutionSummary{
			ExecutionID:      exec.ID,
			WorkflowID:       exec.Workflow.ID,
			WorkflowName:     exec.Workflow.Name,
			State:            exec.State,
			CurrentStepIndex: exec.CurrentStepIndex,
			TotalSteps:       len(exec.Workflow.Steps),
			CompletedSteps:   completed,
			FailedSteps:      failed,
			StartedAt:        exec.StartedAt,
		}, nil
	}

	if ws, ok := o.paused[executionID]; ok {
		completed, failed := countOutcomes(ws.Results)
		pausedAt := ws.PausedAt
		return &ExecutionSummary{
			ExecutionID:      ws.ExecutionID,
			WorkflowID:       ws.Workflow.ID,
			WorkflowName:     ws.Workflow.Name,
			State:            StatePaused,
			CurrentStepIndex: ws.CurrentStepIndex,
			TotalSteps:       len(ws.Workflow.Steps),
			CompletedSteps:   completed,
			FailedSteps:      failed,
			StartedAt:        ws.StartedAt,
			PausedAt:         &pausedAt,
		}, nil
	}

	return nil, &errors.NotFoundError{Resource: "execution", ID: executionID}
}

func newExecutionID() string {
	return uuid.New().String()[:8]
}

func resultsCopy(results []StepResult) []StepResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]StepResult, len(results))
	copy(out, results)
	return out
}

func anyFailure(results []StepResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

func countOutcomes(results []StepResult) (completed, failed int) {
	for _, r := range results {
		if r.Success {
			completed++
		} else {
			failed++
		}
	}
	return completed, failed
}
