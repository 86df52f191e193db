package workflow

import (
	"time"
)

// Execution is the mutable record of one run of a workflow. All mutation
// happens under the Orchestrator's lock; step execution itself runs outside
// it.
type Execution struct {
	// ID uniquely identifies this run
	ID string `json:"id"`

	// Workflow is the workflow being run
	Workflow *Workflow `json:"workflow"`

	// CurrentStepIndex is the top-level step cursor. It is meaningful only
	// for the sequential top-level walk; nested steps are addressed by
	// their position in the tree.
	CurrentStepIndex int `json:"current_step_index"`

	// Results accumulates one entry per leaf step reached
	Results []StepResult `json:"results"`

	// State is the current lifecycle state
	State ExecutionState `json:"state"`

	// StartedAt is when the run began
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Context carries the run's variables and branch audit trail
	Context *ExecutionContext `json:"context"`
}

// ExecutionContext holds the variables visible to condition evaluation and
// an audit trail of conditional branch decisions. The audit trail exists for
// explainability; it never influences control flow.
type ExecutionContext struct {
	// Variables maps variable names to string values
	Variables map[string]string `json:"variables"`

	// Branches records, in order, which branch each conditional took
	Branches []BranchRecord `json:"branches,omitempty"`
}

// BranchRecord is one conditional decision in the audit trail.
type BranchRecord struct {
	// Expression is the condition expression as written
	Expression string `json:"expression"`

	// Branch is "true" or "false"
	Branch string `json:"branch"`

	// DecidedAt is when the condition was evaluated
	DecidedAt time.Time `json:"decided_at"`
}

// NewExecutionContext creates an empty execution context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{Variables: make(map[string]string)}
}

// snapshot returns a deep copy. Parallel children each receive their own
// snapshot, so sibling steps never observe each other's writes and cannot
// mutate the parent context.
func (c *ExecutionContext) snapshot() *ExecutionContext {
	out := &ExecutionContext{Variables: make(map[string]string, len(c.Variables))}
	for k, v := range c.Variables {
		out.Variables[k] = v
	}
	if len(c.Branches) > 0 {
		out.Branches = make([]BranchRecord, len(c.Branches))
		copy(out.Branches, c.Branches)
	}
	return out
}

// recordBranch appends a conditional decision to the audit trail.
func (c *ExecutionContext) recordBranch(expression, branch string) {
	c.Branches = append(c.Branches, BranchRecord{
		Expression: expression,
		Branch:     branch,
		DecidedAt:  time.Now(),
	})
}

// StepResult is the outcome of one executed leaf step. Parallel groups
// produce one result per child; conditionals produce the results of
// whichever branch ran.
type StepResult struct {
	// StepIndex is the step's position in its step sequence
	StepIndex int `json:"step_index"`

	// Success reports whether the step succeeded
	Success bool `json:"success"`

	// Output is the step's output text
	Output string `json:"output"`

	// Error is the failure detail for unsuccessful steps
	Error string `json:"error,omitempty"`

	// Timestamp is when the step finished
	Timestamp time.Time `json:"timestamp"`

	// Duration is how long the step took
	Duration time.Duration `json:"duration"`
}

// WorkflowState is the serializable snapshot of a paused execution. A
// snapshot for execution id X exists if and only if X is currently paused;
// resume and cancel both remove it along with its durable copy.
type WorkflowState struct {
	// ExecutionID identifies the paused run
	ExecutionID string `json:"execution_id"`

	// Workflow is a deep copy of the workflow being run
	Workflow *Workflow `json:"workflow"`

	// CurrentStepIndex is the top-level step to resume from
	CurrentStepIndex int `json:"current_step_index"`

	// Results are the step results accumulated before the pause
	Results []StepResult `json:"results"`

	// Context carries the variables and branch audit trail at pause time
	Context *ExecutionContext `json:"context,omitempty"`

	// StartedAt is when the run originally began, so a resumed run keeps
	// reporting its true start
	StartedAt time.Time `json:"started_at,omitempty"`

	// PausedAt is when the execution was paused
	PausedAt time.Time `json:"paused_at"`
}

// clone returns a deep copy, so callers holding a returned snapshot can
// never mutate the orchestrator's bookkeeping.
func (ws *WorkflowState) clone() *WorkflowState {
	out := &WorkflowState{
		ExecutionID:      ws.ExecutionID,
		CurrentStepIndex: ws.CurrentStepIndex,
		StartedAt:        ws.StartedAt,
		PausedAt:         ws.PausedAt,
	}
	if ws.Workflow != nil {
		out.Workflow = ws.Workflow.clone()
	}
	if len(ws.Results) > 0 {
		out.Results = make([]StepResult, len(ws.Results))
		copy(out.Results, ws.Results)
	}
	if ws.Context != nil {
		out.Context = ws.Context.snapshot()
	}
	return out
}

// ResultStatus classifies a terminal workflow outcome.
type ResultStatus string

const (
	// ResultSuccess means the run walked every step without a structural error.
	// Individual command steps may still have failed; inspect the results.
	ResultSuccess ResultStatus = "success"
	// ResultPartial means the run was interrupted cooperatively (paused or
	// cancelled) at a step boundary; the results cover the steps that ran.
	ResultPartial ResultStatus = "partial"
	// ResultFailure means a structural error aborted the run.
	ResultFailure ResultStatus = "failure"
)

// WorkflowResult is the terminal outcome of ExecuteWorkflow or
// ResumeWorkflow. The entry points always return a result, never a raw
// error: structural failures are carried in Err with Status set to
// ResultFailure.
type WorkflowResult struct {
	// Status classifies the outcome
	Status ResultStatus `json:"status"`

	// ExecutionID identifies the run that produced this result
	ExecutionID string `json:"execution_id,omitempty"`

	// Results are the accumulated step results
	Results []StepResult `json:"results"`

	// Err is the structural error for ResultFailure outcomes
	Err error `json:"-"`
}

// ExecutionSummary is a read-only progress view over an active or paused
// execution.
type ExecutionSummary struct {
	// ExecutionID identifies the run
	ExecutionID string `json:"execution_id"`

	// WorkflowID is the id of the workflow being run
	WorkflowID string `json:"workflow_id"`

	// WorkflowName is the name of the workflow being run
	WorkflowName string `json:"workflow_name"`

	// State is the run's lifecycle state
	State ExecutionState `json:"state"`

	// CurrentStepIndex is the top-level cursor position
	CurrentStepIndex int `json:"current_step_index"`

	// TotalSteps is the number of top-level steps
	TotalSteps int `json:"total_steps"`

	// CompletedSteps counts successful results so far
	CompletedSteps int `json:"completed_steps"`

	// FailedSteps counts failed results so far
	FailedSteps int `json:"failed_steps"`

	// StartedAt is when the run originally began (zero for snapshots that
	// predate the field)
	StartedAt time.Time `json:"started_at"`

	// PausedAt is when the run was paused, for paused executions
	PausedAt *time.Time `json:"paused_at,omitempty"`
}
