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

// Package cancel implements the baton cancel command.
package cancel

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/errors"
)

// NewCommand creates the cancel command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Cancel a paused execution",
		Long: `Cancel removes a paused execution's snapshot, including its persisted
copy. The execution can no longer be resumed. Cancelling an unknown id is
reported but not an error, matching the engine's best-effort contract.`,
		Example: `  baton cancel 4f9d02a1

  # Cancel every stale execution
  baton list --stale --json | jq -r '.[].execution_id' | xargs -n1 baton cancel`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, args[0])
		},
	}

	return cmd
}

func runCancel(cmd *cobra.Command, executionID string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.NewExecutionError("invalid configuration", err)
	}

	engine, err := shared.BuildEngine(cmd.Context(), cfg)
	if err != nil {
		return shared.NewExecutionError("failed to initialize engine", err)
	}
	defer engine.Close(cmd.Context())

	// Report unknown ids: the engine treats them as a no-op, but an
	// operator typing one by hand wants to know nothing happened.
	if _, err := engine.Orchestrator.GetWorkflowSummary(executionID); err != nil {
		if errors.IsNotFound(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No paused execution %s\n", executionID)
			return nil
		}
		return shared.NewExecutionError("", err)
	}

	if err := engine.Orchestrator.CancelWorkflow(cmd.Context(), executionID); err != nil {
		return shared.NewExecutionError("failed to cancel", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", executionID)
	return nil
}
