package ssh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// Interactive runs a command in a remote PTY with the local terminal's
// stdin/stdout/stderr attached, blocking until the remote command exits.
// The caller must own the terminal for the duration of the call: fleetmux
// tears down the dashboard before attaching and rebuilds it after.
//
// A non-zero remote exit is not an error; control simply returns to the
// caller. Context cancellation force-terminates the session (process
// teardown is the only caller that cancels).
func (c *Client) Interactive(ctx context.Context, command string) error {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)
	}

	outFd := int(os.Stdout.Fd())
	width, height, err := term.GetSize(outFd)
	if err != nil {
		width, height = 80, 24
	}

	termType := os.Getenv("TERM")
	if termType == "" {
		termType = "xterm-256color"
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType, height, width, modes); err != nil {
		return fmt.Errorf("request pty: %w", err)
	}

	// Keep the remote PTY in step with the local terminal while the
	// session runs.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)
	defer signal.Stop(sigs)
	resizeCtx, stopResize := context.WithCancel(ctx)
	defer stopResize()
	go forwardResizes(resizeCtx, sigs, session, func() (int, int, error) {
		return term.GetSize(outFd)
	})

	session.Stdin = os.Stdin
	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// The interactive command's exit status is not our error.
			return nil
		}
		return err
	}
}

// windowChanger is the slice of ssh.Session the resize forwarder needs.
type windowChanger interface {
	WindowChange(height, width int) error
}

// forwardResizes sends a window-change request with the current terminal
// size for every signal received. It returns when the context ends or
// the signal channel closes.
func forwardResizes(ctx context.Context, sigs <-chan os.Signal, session windowChanger, size func() (width, height int, err error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sigs:
			if !ok {
				return
			}
			width, height, err := size()
			if err != nil {
				continue
			}
			session.WindowChange(height, width)
		}
	}
}
