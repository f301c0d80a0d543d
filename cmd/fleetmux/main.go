// fleetmux mirrors tmux panes from a fleet of machines into one
// terminal dashboard. The root command runs the dashboard, launching
// the setup flow first when nothing is tracked yet; the doctor
// subcommand prints a per-host connectivity report and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/doctor"
	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/mode"
	"github.com/agent462/fleetmux/internal/palette"
	"github.com/agent462/fleetmux/internal/poller"
	"github.com/agent462/fleetmux/internal/resolve"
	"github.com/agent462/fleetmux/internal/runner"
	"github.com/agent462/fleetmux/internal/ssh"
	"github.com/agent462/fleetmux/internal/ui/dashboard"
	"github.com/agent462/fleetmux/internal/ui/setup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fleetmux:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	insecure   bool
	debugLog   string
}

func rootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "fleetmux",
		Short:         "Mirror tmux panes across machines in one dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "accept SSH host keys not present in known_hosts")
	root.PersistentFlags().StringVar(&opts.debugLog, "debug-log", "", "append debug logs to this file")

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check every configured host and report what is trackable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), opts)
		},
	})

	return root
}

func loadConfig(opts *options) (*config.Config, string, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		// First run: defaults now, setup writes the file on save.
		return config.Default(), path, nil
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(opts *options) (*slog.Logger, func(), error) {
	if opts.debugLog == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(opts.debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { f.Close() }, nil
}

// newRunner builds the command execution stack: a local shell backend
// plus either a pooled or a one-shot SSH backend, per ssh.control_master.
func newRunner(cfg *config.Config, clientConf ssh.ClientConfig) (runner.Runner, func()) {
	cleanup := func() { ssh.CloseAgent() }

	var remote runner.Runner
	if cfg.SSH.ControlMaster {
		pool := ssh.NewPool(clientConf)
		remote = pool
		cleanup = func() {
			pool.Close()
			ssh.CloseAgent()
		}
	} else {
		remote = ssh.NewOneshot(clientConf)
	}
	return &runner.Dispatch{Local: &runner.Local{}, Remote: remote}, cleanup
}

func newResolver(cfg *config.Config, run runner.Runner) *resolve.Resolver {
	return resolve.New(&resolve.CommandProber{
		Runner:  run,
		Timeout: cfg.SSH.ConnectTimeout(),
	})
}

func runDoctor(ctx context.Context, opts *options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	run, cleanup := newRunner(cfg, ssh.ClientConfig{AcceptUnknownHosts: opts.insecure})
	defer cleanup()

	return doctor.Run(ctx, cfg, newResolver(cfg, run), run, os.Stdout)
}

// terminalAttacher hands the real terminal to a tmux attach, locally
// through the shell or remotely over a dedicated SSH session.
type terminalAttacher struct {
	clientConf ssh.ClientConfig
}

func (a *terminalAttacher) Attach(ctx context.Context, target, command string) error {
	if target == runner.LocalTarget {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Detaching is not a failure, whatever tmux exited with.
			return nil
		}
		return err
	}

	client, err := ssh.Dial(ctx, target, a.clientConf)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()
	return client.Interactive(ctx, command)
}

// app wires the full dashboard stack together for one run.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	store      *fleet.Store
	pollers    *poller.Group
	controller *mode.Controller
	discover   setup.Discoverer
	hostColor  func(host string) palette.Color
}

func runDashboard(ctx context.Context, opts *options) error {
	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	clientConf := ssh.ClientConfig{AcceptUnknownHosts: opts.insecure}
	run, cleanup := newRunner(cfg, clientConf)
	defer cleanup()

	resolver := newResolver(cfg, run)
	store := fleet.NewStore(cfg.UI.StaleAfter(), fleet.WithLogger(logger))
	pollers := poller.NewGroup(poller.Config{
		Interval:  cfg.UI.RefreshInterval(),
		Lines:     cfg.UI.Lines,
		ANSI:      cfg.UI.ANSI,
		JoinLines: cfg.UI.JoinLines,
		PathExtra: cfg.SSH.PathExtra,
	}, resolver, run, cfg.AllHosts(), logger)

	store.SetTracked(cfg.Tracked, cfg.Bookmarks)
	pollers.SetTracked(cfg.Tracked)

	// Single writer: every snapshot flows through this loop.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for snap := range pollers.Updates() {
			store.Apply(snap)
		}
	}()
	defer func() {
		pollers.Stop()
		<-drained
	}()

	assignor := palette.New(cfg.Colors.DefaultHostPalette)
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		store:      store,
		pollers:    pollers,
		controller: mode.New(cfg, configPath, pollers, store, resolver,
			&terminalAttacher{clientConf: clientConf}, logger),
		discover: &setup.CommandDiscoverer{
			Resolver:  resolver,
			Runner:    run,
			PathExtra: cfg.SSH.PathExtra,
		},
		hostColor: func(host string) palette.Color {
			if h, ok := cfg.HostByName(host); ok {
				return assignor.ColorFor(h)
			}
			return palette.Default
		},
	}
	return a.run(ctx)
}

func (a *app) run(ctx context.Context) error {
	if len(a.cfg.Tracked) == 0 {
		if err := a.runSetup(ctx); err != nil {
			return err
		}
		if len(a.cfg.Tracked) == 0 {
			fmt.Println("No panes tracked. Run fleetmux again to start over.")
			return nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		model := dashboard.New(dashboard.Config{
			Store:     a.store,
			HostColor: a.hostColor,
			Refresh:   a.cfg.UI.RefreshInterval(),
			Compact:   a.cfg.UI.Compact,
		})
		final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dashboard: %w", err)
		}

		outcome, key := final.(dashboard.Model).Outcome()
		switch outcome {
		case dashboard.OutcomeQuit:
			return nil
		case dashboard.OutcomeSetup:
			if err := a.runSetup(ctx); err != nil {
				return err
			}
		case dashboard.OutcomeTakeControl:
			if err := a.controller.TakeControl(ctx, key); err != nil {
				a.logger.Error("take control failed", "pane", key.String(), "err", err)
			}
		}
	}
}

// runSetup tears down to the setup program and applies its result
// through the controller. The terminal belongs to the setup program for
// the duration; pollers stay paused throughout.
func (a *app) runSetup(ctx context.Context) error {
	a.controller.EnterSetup()

	model := setup.New(a.cfg, a.discover)
	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		a.controller.CancelSetup()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("setup: %w", err)
	}

	outcome, tracked, bookmarks := final.(setup.Model).Result()
	if outcome != setup.OutcomeSave {
		a.controller.CancelSetup()
		return nil
	}

	if err := a.controller.ConfirmSetup(tracked, bookmarks); err != nil {
		a.logger.Error("setup not fully applied", "err", err)
		if a.controller.Mode() == mode.Setup {
			// Selection was rejected; drop it rather than loop.
			a.controller.CancelSetup()
		}
	}
	return nil
}
