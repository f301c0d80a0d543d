// Package resolve picks a reachable target address for each fleet host.
// A host lists one or more candidate targets; the resolver probes them
// in order and caches the first one that answers, so the pollers hammer
// a single address instead of re-walking the candidate list every tick.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/runner"
	"github.com/agent462/fleetmux/internal/tmux"
)

// DefaultTTL is how long a successful resolution stays cached.
const DefaultTTL = 60 * time.Second

// Prober checks whether a target is reachable and has a usable tmux.
type Prober interface {
	Probe(ctx context.Context, target string) error
}

// CommandProber probes by running a short tmux version check on the
// target through the given runner.
type CommandProber struct {
	Runner  runner.Runner
	Timeout time.Duration
}

// Probe runs "tmux -V" on the target and reports failure if the command
// could not run or tmux is missing.
func (p *CommandProber) Probe(ctx context.Context, target string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := p.Runner.Run(ctx, target, tmux.ProbeCommand())
	if res.Err != nil {
		return res.Err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tmux not available on %s: %s", target, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// DownError reports that every candidate target for a host failed its probe.
type DownError struct {
	Host string
	Errs []error
}

func (e *DownError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("host %s down: %s", e.Host, strings.Join(parts, "; "))
}

// IsDown reports whether the error marks a host with no reachable target.
func IsDown(err error) bool {
	var de *DownError
	return errors.As(err, &de)
}

type cacheEntry struct {
	target    string
	expiresAt time.Time
}

// Resolver maps fleet hosts to reachable targets. Successful resolutions
// are cached with a TTL; failures are never cached, so a DOWN host is
// re-probed on the next request. Concurrent resolutions of the same host
// are collapsed into a single probe pass.
type Resolver struct {
	prober Prober
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry

	group singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a resolver that probes targets with the given prober.
func New(prober Prober, opts ...Option) *Resolver {
	r := &Resolver{
		prober: prober,
		ttl:    DefaultTTL,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a reachable target for the host. The local strategy
// short-circuits to the local pseudo-target without probing. Cached
// results are returned until they expire or are invalidated.
func (r *Resolver) Resolve(ctx context.Context, host config.Host) (string, error) {
	if host.Strategy == config.StrategyLocal {
		return runner.LocalTarget, nil
	}

	r.mu.Lock()
	if entry, ok := r.cache[host.Name]; ok && r.now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.target, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(host.Name, func() (any, error) {
		// Another caller may have filled the cache while we waited
		// for the flight slot.
		r.mu.Lock()
		if entry, ok := r.cache[host.Name]; ok && r.now().Before(entry.expiresAt) {
			r.mu.Unlock()
			return entry.target, nil
		}
		r.mu.Unlock()

		target, err := r.probeCandidates(ctx, host)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.cache[host.Name] = cacheEntry{target: target, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return target, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// probeCandidates walks the host's target list according to its strategy.
func (r *Resolver) probeCandidates(ctx context.Context, host config.Host) (string, error) {
	candidates := host.Targets
	if host.Strategy == config.StrategyPinned && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	if len(candidates) == 0 {
		return "", &DownError{Host: host.Name, Errs: []error{fmt.Errorf("no targets configured")}}
	}

	var errs []error
	for _, target := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := r.prober.Probe(ctx, target); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		return target, nil
	}
	return "", &DownError{Host: host.Name, Errs: errs}
}

// Invalidate drops the cached resolution for a host, forcing a fresh
// probe pass on the next Resolve. Pollers call this when a capture fails
// so failover to a backup target happens on the next tick.
func (r *Resolver) Invalidate(hostName string) {
	r.mu.Lock()
	delete(r.cache, hostName)
	r.mu.Unlock()
}

// Cached returns the cached target for a host, if one is still valid.
func (r *Resolver) Cached(hostName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[hostName]
	if !ok || !r.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.target, true
}
