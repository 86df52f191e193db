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

// Package list implements the baton list command.
package list

import (
	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
)

// NewCommand creates the list command
func NewCommand() *cobra.Command {
	var staleOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List paused executions",
		Long: `List shows every paused execution with its workflow, step cursor and
pause age. With --stale, only executions paused longer than the configured
stale threshold (default 24h) are shown; these are cleanup candidates for
'baton cancel'.`,
		Example: `  # All paused executions
  baton list

  # Only executions paused longer than the stale threshold
  baton list --stale`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, staleOnly)
		},
	}

	cmd.Flags().BoolVar(&staleOnly, "stale", false, "Show only executions paused longer than the stale threshold")

	return cmd
}

func runList(cmd *cobra.Command, staleOnly bool) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.NewExecutionError("invalid configuration", err)
	}

	engine, err := shared.BuildEngine(cmd.Context(), cfg)
	if err != nil {
		return shared.NewExecutionError("failed to initialize engine", err)
	}
	defer engine.Close(cmd.Context())

	states := engine.Orchestrator.GetPausedWorkflows()
	if staleOnly {
		states = engine.Orchestrator.GetStaleWorkflows()
	}

	return shared.PrintStates(cmd.OutOrStdout(), states, shared.GetJSON())
}
