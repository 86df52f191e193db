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

// Package watchcmd implements the baton watch command.
package watchcmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/watch"
)

// NewCommand creates the watch command
func NewCommand() *cobra.Command {
	var (
		dir      string
		debounce time.Duration
		maxRate  int
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a definitions directory and keep the registry in sync",
		Long: `Watch loads every workflow definition from a directory, then reloads the
directory when files change. Stale paused executions are reported
periodically so operators can cancel or resume them.

The directory defaults to definitions.dir from the configuration.`,
		Example: `  baton watch ./workflows

  # Calmer reloads for noisy editors
  baton watch ./workflows --debounce 2s --max-reloads 6`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				dir = args[0]
			}
			return runWatch(cmd, dir, debounce, maxRate)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "How long to wait for further changes before reloading")
	cmd.Flags().IntVar(&maxRate, "max-reloads", 0, "Maximum reloads per minute (0 = unlimited)")

	return cmd
}

func runWatch(cmd *cobra.Command, dir string, debounce time.Duration, maxRate int) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.NewExecutionError("invalid configuration", err)
	}
	if dir == "" {
		dir = cfg.Definitions.Dir
	}
	if dir == "" {
		return shared.NewInvalidWorkflowError("no definitions directory given and none configured", nil)
	}

	engine, err := shared.BuildEngine(cmd.Context(), cfg)
	if err != nil {
		return shared.NewExecutionError("failed to initialize engine", err)
	}
	defer engine.Close(cmd.Context())

	service, err := watch.NewService(watch.Config{
		Dir:                 dir,
		DebounceWindow:      debounce,
		MaxReloadsPerMinute: maxRate,
	}, engine.Orchestrator)
	if err != nil {
		return shared.NewExecutionError("failed to start watcher", err)
	}

	if err := service.Start(cmd.Context()); err != nil {
		return shared.NewExecutionError("failed to start watcher", err)
	}
	defer func() {
		if err := service.Stop(); err != nil {
			engine.Logger.Warn("failed to stop watcher", "error", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", dir)

	// Surface stale paused executions while the watcher runs.
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
			stale := engine.Orchestrator.GetStaleWorkflows()
			if len(stale) > 0 {
				engine.Logger.Warn("stale paused executions", "count", len(stale))
			}
		}
	}
}
