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

// Package resume implements the baton resume command.
package resume

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// NewCommand creates the resume command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <execution-id>",
		Short: "Resume a paused execution",
		Long: `Resume continues a paused execution from its saved step. The persisted
snapshot is removed once the execution is reinstated; results accumulated
before the pause are kept and the remaining steps run exactly as an
uninterrupted run would.

Use 'baton list' to find paused execution ids.`,
		Example: `  baton resume 4f9d02a1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args[0])
		},
	}

	return cmd
}

func runResume(cmd *cobra.Command, executionID string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.NewExecutionError("invalid configuration", err)
	}

	engine, err := shared.BuildEngine(cmd.Context(), cfg)
	if err != nil {
		return shared.NewExecutionError("failed to initialize engine", err)
	}
	defer engine.Close(cmd.Context())

	// Same interrupt handling as run: pause first, cancel on the second
	// interrupt, and never kill the in-flight command.
	runCtx := context.WithoutCancel(cmd.Context())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	runDone := make(chan struct{})
	shared.HandleInterrupts(sigCh, runDone, cmd.ErrOrStderr(),
		func() { engine.Orchestrator.PauseWorkflow(executionID) },
		func() { _ = engine.Orchestrator.CancelWorkflow(runCtx, executionID) })

	result := engine.Orchestrator.ResumeWorkflow(runCtx, executionID)
	close(runDone)

	if err := shared.PrintResult(cmd.OutOrStdout(), result, shared.GetJSON()); err != nil {
		return err
	}

	if result.Status == workflow.ResultFailure {
		if errors.IsNotFound(result.Err) {
			return shared.NewNotFoundError("", result.Err)
		}
		return shared.NewExecutionError("", result.Err)
	}
	return nil
}
