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

// Package validate implements the baton validate command.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>...",
		Short: "Validate workflow definition files",
		Long: `Validate parses each definition file and checks every step: commands
must name a command, conditionals must carry a condition and both branches,
parallel groups must have children, and step types must be known. Nothing
is executed.`,
		Example: `  # Validate one definition
  baton validate deploy.yaml

  # Validate a whole directory
  baton validate workflows/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}

	return cmd
}

// fileReport is the per-file JSON output shape.
type fileReport struct {
	File     string `json:"file"`
	Valid    bool   `json:"valid"`
	Workflow string `json:"workflow,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	reports := make([]fileReport, 0, len(args))
	invalid := 0

	for _, path := range args {
		report := fileReport{File: path}
		wf, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			report.Error = err.Error()
			invalid++
		} else {
			report.Valid = true
			report.Workflow = wf.ID
			report.Steps = len(wf.Steps)
		}
		reports = append(reports, report)
	}

	if shared.GetJSON() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if r.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d steps)\n", r.File, r.Workflow, r.Steps)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.File, r.Error)
			}
		}
	}

	if invalid > 0 {
		return shared.NewInvalidWorkflowError(
			fmt.Sprintf("%d of %d definitions invalid", invalid, len(args)), nil)
	}
	return nil
}
