// Package doctor implements the connectivity self-check: for every
// configured host it resolves a target, verifies tmux, and lists what
// there is to track. Hosts are checked concurrently but reported in
// config order.
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/runner"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Resolver picks a reachable target for a host.
type Resolver interface {
	Resolve(ctx context.Context, host config.Host) (string, error)
}

// sampleLines is how much scrollback the capture sample shows.
const sampleLines = 10

type hostReport struct {
	host config.Host

	target     string
	resolveErr error

	version    string
	versionErr error

	windows    []tmux.Window
	windowsErr error

	panes    []tmux.Pane
	panesErr error

	sample    tmux.Capture
	sampleOf  *tmux.Pane
	sampleErr error
}

// Run checks every host (including the local pseudo-host) and writes a
// plain-text report. Per-host failures are part of the report, not
// errors; Run only fails when the context does.
func Run(ctx context.Context, cfg *config.Config, resolver Resolver, run runner.Runner, w io.Writer) error {
	hosts := cfg.AllHosts()

	fmt.Fprintln(w, "fleetmux doctor")
	fmt.Fprintf(w, "Hosts: %d\n", len(hosts))

	reports := make([]*hostReport, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	for i, host := range hosts {
		g.Go(func() error {
			reports[i] = checkHost(gctx, cfg, resolver, run, host)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, report := range reports {
		printReport(w, report)
	}
	return nil
}

func checkHost(ctx context.Context, cfg *config.Config, resolver Resolver, run runner.Runner, host config.Host) *hostReport {
	report := &hostReport{host: host}

	target, err := resolver.Resolve(ctx, host)
	if err != nil {
		report.resolveErr = err
		return report
	}
	report.target = target

	exec := func(command string) (string, error) {
		res := run.Run(ctx, target, tmux.WithPath(command, cfg.SSH.PathExtra))
		if res.Err != nil {
			return "", res.Err
		}
		if res.ExitCode != 0 {
			return "", fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
		}
		return string(res.Stdout), nil
	}

	out, err := exec(tmux.ProbeCommand())
	if err != nil {
		report.versionErr = err
		return report
	}
	report.version = strings.TrimSpace(out)

	if out, err := exec(tmux.ListWindowsCommand()); err != nil {
		report.windowsErr = err
	} else {
		report.windows = tmux.ParseWindows(out)
	}

	out, err = exec(tmux.ListPanesCommand())
	if err != nil {
		report.panesErr = err
		return report
	}
	report.panes = tmux.ParsePanes(out)

	if len(report.panes) > 0 {
		pane := report.panes[0]
		report.sampleOf = &pane
		out, err := exec(tmux.CaptureCommand(pane.ID, sampleLines, false, false))
		if err != nil {
			report.sampleErr = err
		} else {
			report.sample = tmux.ParseCapture(out)
		}
	}
	return report
}

func printReport(w io.Writer, r *hostReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Host: %s\n", r.host.Name)
	fmt.Fprintf(w, "Targets: %s\n", strings.Join(r.host.Targets, ", "))
	if r.host.Color != "" {
		fmt.Fprintf(w, "Color: %s\n", r.host.Color)
	}

	if r.resolveErr != nil {
		fmt.Fprintf(w, "Resolve error: %v\n", r.resolveErr)
		return
	}
	fmt.Fprintf(w, "Resolved target: %s\n", r.target)

	if r.versionErr != nil {
		fmt.Fprintf(w, "tmux error: %v\n", r.versionErr)
		return
	}
	fmt.Fprintf(w, "tmux: %s\n", r.version)

	if r.windowsErr != nil {
		fmt.Fprintf(w, "Windows error: %v\n", r.windowsErr)
	} else {
		fmt.Fprintf(w, "Windows: %d\n", len(r.windows))
		for _, win := range r.windows {
			name := win.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(w, "  %s:%d %s\n", win.Session, win.Index, name)
		}
	}

	if r.panesErr != nil {
		fmt.Fprintf(w, "Panes error: %v\n", r.panesErr)
		return
	}
	fmt.Fprintf(w, "Panes: %d\n", len(r.panes))
	for _, pane := range r.panes {
		fmt.Fprintf(w, "  %s:%d %s %s %s\n", pane.Session, pane.Window, pane.ID, pane.Command, pane.Title)
	}

	if r.sampleOf != nil {
		fmt.Fprintf(w, "Capture sample: %s:%d %s\n", r.sampleOf.Session, r.sampleOf.Window, r.sampleOf.ID)
		if r.sampleErr != nil {
			fmt.Fprintf(w, "Capture error: %v\n", r.sampleErr)
			return
		}
		for _, line := range r.sample.Lines {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
