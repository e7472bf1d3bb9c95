package safety

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// maxOutputBytes caps captured command output.
const maxOutputBytes = 100 * 1024

// Result is the outcome of one executed command.
type Result struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Executor runs commands inside the workspace with a bounded timeout.
type Executor struct {
	workspaceDir   string
	defaultTimeout time.Duration
}

// NewExecutor creates an executor rooted at workspaceDir.
func NewExecutor(workspaceDir string, defaultTimeoutSec int) *Executor {
	timeout := time.Duration(defaultTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{workspaceDir: workspaceDir, defaultTimeout: timeout}
}

// Run executes the command through the shell. timeoutSec of zero uses
// the default; anything is capped at five minutes. A timed out command
// reports exit code -1 and a stderr note instead of an error, the
// caller always gets a Result it can show the user.
func (e *Executor) Run(ctx context.Context, command string, timeoutSec int) *Result {
	timeout := e.defaultTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	if timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.workspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Command: command,
		Stdout:  truncate(stdout.String()),
		Stderr:  truncate(stderr.String()),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("Timeout after %ds", int(timeout.Seconds()))
		return result
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = truncate(result.Stderr + err.Error())
		}
	}
	return result
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n\n[... output truncated ...]"
}
