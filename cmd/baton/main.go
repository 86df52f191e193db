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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/baton/internal/cli"
	"github.com/tombee/baton/internal/commands/cancel"
	"github.com/tombee/baton/internal/commands/list"
	"github.com/tombee/baton/internal/commands/resume"
	"github.com/tombee/baton/internal/commands/run"
	"github.com/tombee/baton/internal/commands/validate"
	watchcmd "github.com/tombee/baton/internal/commands/watch"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Core workflow commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(resume.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())

	// Paused-execution management
	rootCmd.AddCommand(list.NewCommand())
	rootCmd.AddCommand(cancel.NewCommand())

	// Long-running registry sync
	rootCmd.AddCommand(watchcmd.NewCommand())

	// The run command installs its own interrupt handling (pause, then
	// cancel); this context covers everything else.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cli.HandleExitError(err)
	}
}
