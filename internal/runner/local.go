package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Local runs commands on this machine through the shell.
// Spawned processes are always reaped: cancellation kills the process
// and Run still waits for it to exit.
type Local struct {
	// Shell is the shell binary used to interpret commands.
	// Defaults to /bin/sh.
	Shell string
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, target string, command string) *Result {
	result := &Result{Target: target}
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	// If the kill signal is ignored, give up waiting after a grace
	// period so a wedged child cannot block the poller forever.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	if err == nil {
		return result
	}

	// Context expiry takes precedence over the SIGKILL-induced exit error.
	if ctx.Err() != nil {
		result.ExitCode = -1
		result.Err = ctx.Err()
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}

	result.ExitCode = -1
	result.Err = fmt.Errorf("spawn %s: %w", shell, err)
	return result
}
