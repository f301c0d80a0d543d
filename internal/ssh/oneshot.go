package ssh

import (
	"context"
	"fmt"

	"github.com/agent462/fleetmux/internal/runner"
)

// Oneshot implements runner.Runner by dialing a fresh connection per
// command and closing it afterwards. Used when connection reuse
// (control_master) is disabled.
type Oneshot struct {
	conf ClientConfig
}

// NewOneshot creates a one-shot runner with the given client config.
func NewOneshot(conf ClientConfig) *Oneshot {
	return &Oneshot{conf: conf}
}

// Run executes a command on a single target over a fresh connection.
func (o *Oneshot) Run(ctx context.Context, target string, command string) *runner.Result {
	result := &runner.Result{Target: target}

	client, err := Dial(ctx, target, o.conf)
	if err != nil {
		result.ExitCode = -1
		result.Err = WrapConnectError(target, fmt.Errorf("connect: %w", err))
		return result
	}
	defer client.Close()

	stdout, stderr, exitCode, err := client.RunCommand(ctx, command)
	result.Stdout = stdout
	result.Stderr = stderr
	result.ExitCode = exitCode
	result.Err = err
	return result
}
