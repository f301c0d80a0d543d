package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"golang.org/x/sync/errgroup"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/runner"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Resolver picks a reachable target for a host.
type Resolver interface {
	Resolve(ctx context.Context, host config.Host) (string, error)
}

// Discoverer lists the windows and panes of a host.
type Discoverer interface {
	Discover(ctx context.Context, host config.Host) (windows []tmux.Window, panes []tmux.Pane, err error)
}

// CommandDiscoverer discovers over the shared runner, fetching the
// window and pane listings concurrently.
type CommandDiscoverer struct {
	Resolver  Resolver
	Runner    runner.Runner
	PathExtra []string
	Timeout   time.Duration
}

func (d *CommandDiscoverer) Discover(ctx context.Context, host config.Host) ([]tmux.Window, []tmux.Pane, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := d.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, nil, err
	}

	exec := func(command string) (string, error) {
		res := d.Runner.Run(ctx, target, tmux.WithPath(command, d.PathExtra))
		if res.Err != nil {
			return "", res.Err
		}
		if res.ExitCode != 0 {
			return "", fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
		}
		return string(res.Stdout), nil
	}

	var windows []tmux.Window
	var panes []tmux.Pane
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := exec(tmux.ListWindowsCommand())
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		windows = tmux.ParseWindows(out)
		return nil
	})
	g.Go(func() error {
		out, err := exec(tmux.ListPanesCommand())
		if err != nil {
			return fmt.Errorf("list panes: %w", err)
		}
		panes = tmux.ParsePanes(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return windows, panes, nil
}

// hostLoadedMsg carries a finished discovery for one host.
type hostLoadedMsg struct {
	host    string
	windows []tmux.Window
	panes   []tmux.Pane
	err     error
}

func discoverCmd(d Discoverer, host config.Host) tea.Cmd {
	return func() tea.Msg {
		windows, panes, err := d.Discover(context.Background(), host)
		return hostLoadedMsg{host: host.Name, windows: windows, panes: panes, err: err}
	}
}
