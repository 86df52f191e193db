// Package shell runs command steps through the system shell.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertion.
var _ workflow.CommandRunner = (*Runner)(nil)

// Config holds configuration for the shell runner.
type Config struct {
	// WorkingDir is the working directory for commands
	WorkingDir string

	// Env is appended to the inherited environment as KEY=VALUE pairs
	Env []string

	// Timeout bounds each command; zero means no timeout. The
	// orchestrator never imposes one, so this is the place to set it.
	Timeout time.Duration
}

// Runner executes command steps via "sh -c". The command text is passed to
// the shell untouched; quoting and pipelines behave exactly as they would
// at a prompt.
type Runner struct {
	config Config
}

// New creates a shell runner.
func New(config Config) *Runner {
	return &Runner{config: config}
}

// Run executes one command and reports its outcome. Failures, including
// timeouts, come back as a failed result rather than an error: the
// orchestrator records them and moves on.
func (r *Runner) Run(ctx context.Context, command string) workflow.CommandResult {
	if strings.TrimSpace(command) == "" {
		return workflow.CommandResult{Error: "command is empty"}
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.config.WorkingDir != "" {
		cmd.Dir = r.config.WorkingDir
	}
	if len(r.config.Env) > 0 {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())

	if err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if ctx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("command timed out after %s", r.config.Timeout)
		} else if errMsg == "" {
			errMsg = err.Error()
		}
		return workflow.CommandResult{Output: output, Error: errMsg}
	}

	return workflow.CommandResult{Success: true, Output: output}
}
