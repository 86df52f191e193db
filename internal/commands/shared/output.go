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

package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// resultView is the JSON shape of a workflow result. WorkflowResult carries
// its structural error as an error value; this view flattens it to text.
type resultView struct {
	Status      workflow.ResultStatus `json:"status"`
	ExecutionID string                `json:"execution_id,omitempty"`
	Results     []workflow.StepResult `json:"results"`
	Error       string                `json:"error,omitempty"`
}

// PrintResult writes a workflow result as a step table or, with asJSON,
// as a single JSON document.
func PrintResult(w io.Writer, result *workflow.WorkflowResult, asJSON bool) error {
	if asJSON {
		view := resultView{
			Status:      result.Status,
			ExecutionID: result.ExecutionID,
			Results:     result.Results,
		}
		if result.Err != nil {
			view.Error = result.Err.Error()
		}
		return emitJSON(w, view)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tOUTPUT")
	for _, r := range result.Results {
		status := "ok"
		detail := firstLine(r.Output)
		if !r.Success {
			status = "failed"
			if r.Error != "" {
				detail = firstLine(r.Error)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.StepIndex, status, r.Duration.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	switch result.Status {
	case workflow.ResultSuccess:
		fmt.Fprintf(w, "\nExecution %s completed (%d steps)\n", result.ExecutionID, len(result.Results))
	case workflow.ResultPartial:
		fmt.Fprintf(w, "\nExecution %s interrupted after %d steps\n", result.ExecutionID, len(result.Results))
	case workflow.ResultFailure:
		fmt.Fprintf(w, "\nExecution %s failed: %v\n", result.ExecutionID, result.Err)
	}
	return nil
}

// PrintStates writes paused-execution snapshots as a table or JSON list.
func PrintStates(w io.Writer, states []*workflow.WorkflowState, asJSON bool) error {
	if asJSON {
		return emitJSON(w, states)
	}
	if len(states) == 0 {
		fmt.Fprintln(w, "No paused executions")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTION\tWORKFLOW\tSTEP\tPAUSED")
	for _, ws := range states {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s ago\n",
			ws.ExecutionID,
			ws.Workflow.ID,
			ws.CurrentStepIndex,
			len(ws.Workflow.Steps),
			time.Since(ws.PausedAt).Round(time.Second))
	}
	return tw.Flush()
}

// PrintSummary writes a single execution progress view.
func PrintSummary(w io.Writer, summary *workflow.ExecutionSummary, asJSON bool) error {
	if asJSON {
		return emitJSON(w, summary)
	}

	fmt.Fprintf(w, "Execution: %s\n", summary.ExecutionID)
	fmt.Fprintf(w, "Workflow:  %s (%s)\n", summary.WorkflowName, summary.WorkflowID)
	fmt.Fprintf(w, "State:     %s\n", summary.State)
	fmt.Fprintf(w, "Progress:  step %d of %d (%d completed, %d failed)\n",
		summary.CurrentStepIndex, summary.TotalSteps, summary.CompletedSteps, summary.FailedSteps)
	if summary.PausedAt != nil {
		fmt.Fprintf(w, "Paused:    %s\n", summary.PausedAt.Format(time.RFC3339))
	}
	return nil
}

func emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
