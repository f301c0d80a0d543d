package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/agent462/fleetmux/internal/runner"
)

// dialResult holds the outcome of a Dial attempt, shared between goroutines
// waiting for the same target connection.
type dialResult struct {
	client *Client
	err    error
}

// Pool manages persistent SSH connections to multiple targets. It
// implements runner.Runner, reusing cached connections across commands
// and automatically reconnecting on stale connections. This is the
// connection-reuse optimization behind the control_master setting;
// the one-shot Runner is used when reuse is disabled, and the rest of
// fleetmux behaves identically either way.
type Pool struct {
	mu       sync.Mutex
	clients  map[string]*Client
	inflight map[string]chan dialResult // per-target dial coordination
	conf     ClientConfig
}

// NewPool creates a connection pool with the given client config.
func NewPool(conf ClientConfig) *Pool {
	return &Pool{
		clients:  make(map[string]*Client),
		inflight: make(map[string]chan dialResult),
		conf:     conf,
	}
}

// Run implements runner.Runner. It reuses a cached connection if available,
// dialing a new one if needed. If a command fails with what looks like a
// connection error, it evicts the cached connection and retries once.
func (p *Pool) Run(ctx context.Context, target string, command string) *runner.Result {
	result := &runner.Result{Target: target}

	stdout, stderr, exitCode, err := p.exec(ctx, target, command)
	if err != nil && isReconnectable(err) {
		p.evict(target)
		stdout, stderr, exitCode, err = p.exec(ctx, target, command)
	}

	result.Stdout = stdout
	result.Stderr = stderr
	result.ExitCode = exitCode
	result.Err = err
	return result
}

func (p *Pool) exec(ctx context.Context, target string, command string) ([]byte, []byte, int, error) {
	client, err := p.getOrDial(ctx, target)
	if err != nil {
		return nil, nil, -1, WrapConnectError(target, fmt.Errorf("connect: %w", err))
	}
	return client.RunCommand(ctx, command)
}

func (p *Pool) getOrDial(ctx context.Context, target string) (*Client, error) {
	p.mu.Lock()

	// Fast path: already connected.
	if client, ok := p.clients[target]; ok {
		p.mu.Unlock()
		return client, nil
	}

	// Check if another goroutine is already dialing this target.
	if ch, ok := p.inflight[target]; ok {
		p.mu.Unlock()
		// Wait for the in-flight dial to complete.
		select {
		case res := <-ch:
			// Put the result back so other waiters can also read it.
			ch <- res
			return res.client, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We are the first to dial this target. Create a coordination channel.
	ch := make(chan dialResult, 1)
	p.inflight[target] = ch
	p.mu.Unlock()

	client, err := Dial(ctx, target, p.conf)

	p.mu.Lock()
	delete(p.inflight, target)
	if err == nil {
		p.clients[target] = client
	}
	p.mu.Unlock()

	// Broadcast result to any waiters.
	ch <- dialResult{client: client, err: err}

	return client, err
}

func (p *Pool) evict(target string) {
	p.mu.Lock()
	client, ok := p.clients[target]
	if ok {
		delete(p.clients, target)
	}
	p.mu.Unlock()

	if ok {
		client.Close()
	}
}

// IsConnected reports whether a cached connection exists for the given target.
func (p *Pool) IsConnected(target string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.clients[target]
	return ok
}

// Close closes all cached connections and resets the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	var firstErr error
	for _, client := range clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// isReconnectable returns true if the error suggests a stale/broken connection
// that might succeed on retry with a fresh dial. It returns false for errors
// that are permanent (auth failures, context cancellation) to avoid unnecessary
// retry attempts.
func isReconnectable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// Detect closed/reset connections.
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") {
		return true
	}
	return false
}
