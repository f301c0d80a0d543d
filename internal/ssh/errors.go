package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectError wraps an SSH connection error with a user-friendly hint.
// The doctor command surfaces the hint; the dashboard only shows the
// short error in the pane tile.
type ConnectError struct {
	Target string
	Err    error
	Hint   string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Target, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WrapConnectError wraps an SSH connection error with a friendly hint.
// If the error doesn't match any known patterns, it's returned as-is.
func WrapConnectError(target string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// Permission denied on SSH key file.
	if strings.Contains(msg, "permission denied") && strings.Contains(msg, "key") {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   "check SSH key permissions (chmod 600)",
		}
	}

	// SSH authentication failure.
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   fmt.Sprintf("verify your SSH key or agent. Try: ssh -v %s", target),
		}
	}

	// Connection refused.
	if strings.Contains(msg, "connection refused") {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   "verify SSH daemon is running on the target",
		}
	}

	// Connect timeout.
	if strings.Contains(msg, "i/o timeout") || errors.Is(err, context.DeadlineExceeded) {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   "target did not answer within the connect timeout; check network reachability",
		}
	}

	// DNS resolution failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   "verify the target hostname is correct",
		}
	}

	// Known hosts: missing entry.
	if strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts") {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   fmt.Sprintf("use --insecure or connect once with: ssh %s", target),
		}
	}

	// Known hosts: key mismatch.
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return &ConnectError{
			Target: target,
			Err:    err,
			Hint:   fmt.Sprintf("remove old key with: ssh-keygen -R %s", target),
		}
	}

	return err
}
