// Package mode owns the state machine that sequences the three ways
// fleetmux can hold the terminal: the read-only dashboard, the setup
// flow, and a take-control attach. Pollers are paused whenever the
// dashboard is not the active surface.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Mode is the current interaction mode.
type Mode int

const (
	Dashboard Mode = iota
	Setup
	TakeControl
)

func (m Mode) String() string {
	switch m {
	case Dashboard:
		return "dashboard"
	case Setup:
		return "setup"
	case TakeControl:
		return "take-control"
	}
	return "unknown"
}

// Attacher runs a blocking interactive command on a target, wiring the
// user's terminal through to it. It returns when the user detaches.
type Attacher interface {
	Attach(ctx context.Context, target, command string) error
}

// Pollers is the slice of the polling group the controller drives.
type Pollers interface {
	Pause()
	Resume()
	SetHosts(hosts []config.Host)
	SetTracked(tracked []config.TrackedPane)
}

// Store is the slice of the fleet store the controller drives.
type Store interface {
	SetTracked(tracked, bookmarks []config.TrackedPane)
	Pane(key fleet.Key) (fleet.PaneView, bool)
}

// Resolver picks a reachable target for a host.
type Resolver interface {
	Resolve(ctx context.Context, host config.Host) (string, error)
}

// Controller sequences mode transitions. Methods that change mode must
// be called from the outer run loop, never concurrently with each other;
// the mutex only protects Mode() readers.
type Controller struct {
	mu   sync.Mutex
	mode Mode

	cfg        *config.Config
	configPath string

	pollers  Pollers
	store    Store
	resolver Resolver
	attacher Attacher
	logger   *slog.Logger
}

// New creates a controller in Dashboard mode.
func New(cfg *config.Config, configPath string, pollers Pollers, store Store, resolver Resolver, attacher Attacher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		mode:       Dashboard,
		cfg:        cfg,
		configPath: configPath,
		pollers:    pollers,
		store:      store,
		resolver:   resolver,
		attacher:   attacher,
		logger:     logger,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) transition(from, to Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != from {
		panic(fmt.Sprintf("illegal mode transition %v -> %v (current %v)", from, to, c.mode))
	}
	c.mode = to
}

// EnterSetup moves Dashboard -> Setup and pauses polling.
func (c *Controller) EnterSetup() {
	c.transition(Dashboard, Setup)
	c.pollers.Pause()
	c.logger.Debug("entered setup")
}

// ConfirmSetup persists the new tracked set, reconciles the store and
// the pollers against it, and returns to Dashboard. An invalid
// selection is rejected and the controller stays in Setup so the user
// can fix it.
func (c *Controller) ConfirmSetup(tracked, bookmarks []config.TrackedPane) error {
	if m := c.Mode(); m != Setup {
		panic(fmt.Sprintf("illegal mode transition %v -> %v", m, Dashboard))
	}

	prevTracked, prevBookmarks := c.cfg.Tracked, c.cfg.Bookmarks
	c.cfg.Tracked, c.cfg.Bookmarks = tracked, bookmarks
	if err := c.cfg.Validate(); err != nil {
		c.cfg.Tracked, c.cfg.Bookmarks = prevTracked, prevBookmarks
		return fmt.Errorf("selection rejected: %w", err)
	}

	// A failed write is reported but does not block the new selection
	// from taking effect for this run.
	var saveErr error
	if err := config.Save(c.configPath, c.cfg); err != nil {
		saveErr = fmt.Errorf("save config: %w", err)
	}

	c.transition(Setup, Dashboard)
	c.store.SetTracked(tracked, bookmarks)
	// Setup may have added or re-targeted hosts; push the definitions
	// before the workers for new panes take their first tick.
	c.pollers.SetHosts(c.cfg.AllHosts())
	c.pollers.SetTracked(tracked)
	c.pollers.Resume()
	c.logger.Debug("setup confirmed", "tracked", len(tracked), "bookmarks", len(bookmarks))
	return saveErr
}

// CancelSetup abandons the setup flow and returns to Dashboard.
func (c *Controller) CancelSetup() {
	c.transition(Setup, Dashboard)
	c.pollers.Resume()
	c.logger.Debug("setup cancelled")
}

// TakeControl hands the terminal to an interactive tmux attach on the
// pane's host. It blocks until the user detaches, then restores
// Dashboard mode and resumes polling. A non-zero exit from the attach
// is not an error; only setup failures (DOWN pane, resolution failure)
// are.
func (c *Controller) TakeControl(ctx context.Context, key fleet.Key) error {
	pane, ok := c.store.Pane(key)
	if !ok {
		return fmt.Errorf("pane %s is not tracked", key)
	}
	if pane.Status == fleet.StatusDown {
		return fmt.Errorf("host %s is down, refusing to attach", key.Host)
	}
	host, ok := c.cfg.HostByName(key.Host)
	if !ok {
		return fmt.Errorf("unknown host %q", key.Host)
	}

	c.transition(Dashboard, TakeControl)
	c.pollers.Pause()
	defer func() {
		c.pollers.Resume()
		c.transition(TakeControl, Dashboard)
	}()

	target, err := c.resolver.Resolve(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", key.Host, err)
	}

	cmd := tmux.AttachCommand(key.Session, key.Window, key.PaneID)
	cmd = tmux.WithPath(cmd, c.cfg.SSH.PathExtra)
	c.logger.Debug("taking control", "target", target, "pane", key.String())

	if err := c.attacher.Attach(ctx, target, cmd); err != nil {
		// The dashboard comes back either way; surface the error so
		// the run loop can show it.
		return fmt.Errorf("attach %s: %w", target, err)
	}
	return nil
}
