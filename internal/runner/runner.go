// Package runner defines the command execution contract shared by the
// local and SSH backends. The runner captures raw output and does not
// interpret it; line splitting and ANSI handling happen downstream.
package runner

import (
	"context"
	"time"
)

// LocalTarget is the pseudo-target whose commands execute on this machine.
const LocalTarget = "local"

// Result holds the outcome of running one command against one target.
type Result struct {
	Target   string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
	Duration time.Duration
}

// Success reports whether the command ran and exited zero.
func (r *Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes a command against a single target.
type Runner interface {
	Run(ctx context.Context, target string, command string) *Result
}

// Dispatch routes local-target commands to the local backend and
// everything else to the remote backend.
type Dispatch struct {
	Local  Runner
	Remote Runner
}

// Run implements Runner.
func (d *Dispatch) Run(ctx context.Context, target string, command string) *Result {
	if target == LocalTarget {
		return d.Local.Run(ctx, target, command)
	}
	return d.Remote.Run(ctx, target, command)
}
