// Package poller drives the per-pane capture loops. Every tracked pane
// gets its own worker goroutine; workers resolve their host, run the
// capture command, and publish snapshots on a shared channel consumed by
// a single drain loop. A pause gate lets the whole group be suspended
// while setup or take-control owns the terminal.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/resolve"
	"github.com/agent462/fleetmux/internal/runner"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Config holds the per-capture settings shared by all workers.
type Config struct {
	Interval  time.Duration
	Lines     int
	ANSI      bool
	JoinLines bool
	PathExtra []string
	// Timeout bounds a single capture so one slow host cannot wedge
	// its worker past several ticks.
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 5 * time.Second
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Group owns one polling worker per tracked pane.
type Group struct {
	cfg      Config
	resolver *resolve.Resolver
	run      runner.Runner
	logger   *slog.Logger

	updates chan fleet.Snapshot

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	hosts   map[string]config.Host
	workers map[fleet.Key]*worker
	gate    chan struct{} // closed while running, open while paused
	stopped bool
}

// NewGroup creates a polling group. Hosts must contain every host name
// that tracked panes reference, including the local pseudo-host.
func NewGroup(cfg Config, resolver *resolve.Resolver, run runner.Runner, hosts []config.Host, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]config.Host, len(hosts))
	for _, h := range hosts {
		byName[h.Name] = h
	}

	ctx, cancel := context.WithCancel(context.Background())
	gate := make(chan struct{})
	close(gate)

	return &Group{
		cfg:      cfg,
		resolver: resolver,
		run:      run,
		logger:   logger,
		updates:  make(chan fleet.Snapshot, 64),
		ctx:      ctx,
		cancel:   cancel,
		hosts:    byName,
		workers:  make(map[fleet.Key]*worker),
		gate:     gate,
	}
}

// Updates is the snapshot stream. It is closed by Stop once every worker
// has exited, so a range loop over it terminates cleanly.
func (g *Group) Updates() <-chan fleet.Snapshot {
	return g.updates
}

// SetHosts replaces the host definitions workers consult when resolving.
// Setup can add or re-target hosts mid-run; workers pick up the new
// definitions on their next tick.
func (g *Group) SetHosts(hosts []config.Host) {
	byName := make(map[string]config.Host, len(hosts))
	for _, h := range hosts {
		byName[h.Name] = h
	}
	g.mu.Lock()
	g.hosts = byName
	g.mu.Unlock()
}

// SetTracked reconciles the worker set against the given tracked panes:
// workers for removed panes are stopped and awaited, workers for added
// panes are started. Surviving workers are untouched.
func (g *Group) SetTracked(tracked []config.TrackedPane) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}

	want := make(map[fleet.Key]config.TrackedPane, len(tracked))
	for _, tp := range tracked {
		want[fleet.KeyFor(tp)] = tp
	}

	var removed []*worker
	for key, w := range g.workers {
		if _, ok := want[key]; !ok {
			w.cancel()
			removed = append(removed, w)
			delete(g.workers, key)
		}
	}

	for key, tp := range want {
		if _, ok := g.workers[key]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(g.ctx)
		w := &worker{cancel: cancel, done: make(chan struct{})}
		g.workers[key] = w
		go g.runWorker(ctx, tp, w.done)
	}
	g.mu.Unlock()

	for _, w := range removed {
		<-w.done
	}
}

// Pause suspends scheduling of new captures. A capture already in flight
// finishes and its snapshot is still published; the store's ordering
// rules make that harmless.
func (g *Group) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.gate:
		g.gate = make(chan struct{})
	default:
		// already paused
	}
}

// Resume lifts the pause gate. Workers poll immediately rather than
// waiting out their interval, so the dashboard comes back with fresh
// snapshots.
func (g *Group) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.gate:
		// already running
	default:
		close(g.gate)
	}
}

// Stop cancels every worker, waits for them to exit, and closes the
// updates channel.
func (g *Group) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.cancel()
	workers := make([]*worker, 0, len(g.workers))
	for _, w := range g.workers {
		workers = append(workers, w)
	}
	g.workers = make(map[fleet.Key]*worker)
	g.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}
	close(g.updates)
}

// waitResumed blocks while the group is paused. Returns false when the
// worker should exit.
func (g *Group) waitResumed(ctx context.Context) bool {
	for {
		g.mu.Lock()
		gate := g.gate
		g.mu.Unlock()
		select {
		case <-gate:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (g *Group) runWorker(ctx context.Context, tp config.TrackedPane, done chan struct{}) {
	defer close(done)

	key := fleet.KeyFor(tp)
	timer := time.NewTimer(g.cfg.Interval)
	defer timer.Stop()

	for {
		if !g.waitResumed(ctx) {
			return
		}

		snap := g.pollOnce(ctx, key, tp)
		if ctx.Err() != nil {
			return
		}
		select {
		case g.updates <- snap:
		case <-ctx.Done():
			return
		}

		timer.Reset(g.cfg.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce resolves the pane's host and runs one capture.
func (g *Group) pollOnce(ctx context.Context, key fleet.Key, tp config.TrackedPane) fleet.Snapshot {
	host, ok := g.hostFor(tp.Host)
	if !ok {
		return fleet.Snapshot{
			Key:        key,
			CapturedAt: time.Now(),
			HostDown:   true,
			Err:        fmt.Errorf("unknown host %q", tp.Host),
		}
	}

	target, err := g.resolver.Resolve(ctx, host)
	if err != nil {
		g.logger.Debug("resolve failed", "host", host.Name, "err", err)
		return fleet.Snapshot{
			Key:        key,
			CapturedAt: time.Now(),
			HostDown:   resolve.IsDown(err),
			Err:        err,
		}
	}

	cmd := tmux.CaptureCommand(tp.PaneID, g.cfg.Lines, g.cfg.ANSI, g.cfg.JoinLines)
	cmd = tmux.WithPath(cmd, g.cfg.PathExtra)

	captureCtx, cancel := context.WithTimeout(ctx, g.cfg.timeout())
	res := g.run.Run(captureCtx, target, cmd)
	cancel()

	if !res.Success() {
		// The cached target may have gone bad mid-TTL; drop it so the
		// next tick re-probes and can fail over.
		g.resolver.Invalidate(host.Name)
		err := res.Err
		if err == nil {
			err = fmt.Errorf("capture exited %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
		}
		g.logger.Debug("capture failed", "host", host.Name, "target", target, "pane", tp.PaneID, "err", err)
		return fleet.Snapshot{Key: key, CapturedAt: time.Now(), Err: err}
	}

	return fleet.Snapshot{
		Key:        key,
		CapturedAt: time.Now(),
		Capture:    tmux.ParseCapture(string(res.Stdout)),
		Success:    true,
	}
}

func (g *Group) hostFor(name string) (config.Host, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hosts[name]
	return h, ok
}
