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

// Package run implements the baton run command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		vars  []string
		halt  bool
		runID string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow definition",
		Long: `Run executes a workflow definition file from its first step and prints
one result line per executed step.

A failed command step is recorded and the run continues; pass --halt to
stop at the first failed top-level step instead. Steps inside parallel
groups always run to completion.

Interrupting the run (Ctrl-C) pauses it at the next top-level step
boundary and persists a snapshot; 'baton resume' continues it later. A
second interrupt cancels the run without keeping a snapshot.`,
		Example: `  # Execute a runbook
  baton run deploy.yaml

  # Seed condition variables
  baton run deploy.yaml --var env=production --var region=eu-west-1

  # Stop at the first failed step
  baton run deploy.yaml --halt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], vars, halt, runID)
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "Set a context variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&halt, "halt", false, "Stop the run at the first failed top-level step")
	cmd.Flags().StringVar(&runID, "id", "", "Use a fixed execution id instead of a generated one")

	return cmd
}

func runRun(cmd *cobra.Command, path string, vars []string, halt bool, runID string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.NewExecutionError("invalid configuration", err)
	}

	engine, err := shared.BuildEngine(cmd.Context(), cfg)
	if err != nil {
		return shared.NewExecutionError("failed to initialize engine", err)
	}
	defer engine.Close(cmd.Context())

	wf, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return shared.NewInvalidWorkflowError("invalid workflow", err)
	}
	if halt {
		wf.HaltOnFailure = true
	}

	// Register the workflow so self-referencing subworkflow steps resolve
	// (and are then rejected by the cycle guard with a readable path).
	if err := engine.Orchestrator.StoreWorkflow(wf); err != nil {
		return shared.NewInvalidWorkflowError("invalid workflow", err)
	}

	variables, err := parseVars(vars)
	if err != nil {
		return shared.NewInvalidWorkflowError("invalid --var", err)
	}

	if runID == "" {
		runID = uuid.New().String()[:8]
	}

	// First interrupt pauses the run at the next step boundary; the
	// snapshot makes it resumable. A second interrupt cancels it. The run
	// itself gets a context detached from the signal-cancelled one so the
	// in-flight command is never killed mid-step.
	runCtx := context.WithoutCancel(cmd.Context())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	runDone := make(chan struct{})
	shared.HandleInterrupts(sigCh, runDone, cmd.ErrOrStderr(),
		func() { engine.Orchestrator.PauseWorkflow(runID) },
		func() { _ = engine.Orchestrator.CancelWorkflow(runCtx, runID) })

	result := engine.Orchestrator.ExecuteWorkflow(runCtx, wf,
		workflow.WithRunID(runID),
		workflow.WithVariables(variables))
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

// parseVars converts repeated key=value flags into a variable map.
func parseVars(vars []string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(vars))
	for _, kv := range vars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", kv)
		}
		out[key] = value
	}
	return out, nil
}
