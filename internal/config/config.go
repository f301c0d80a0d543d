package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// MaxTrackedPanes is the hard cap on concurrently tracked panes.
// It is enforced at selection time and again at config validation,
// before any poller is spawned.
const MaxTrackedPanes = 10

// Resolution strategies for a host's target list.
const (
	StrategyAuto   = "auto"   // probe targets in order, first reachable wins
	StrategyPinned = "pinned" // always the first target
	StrategyLocal  = "local"  // run commands locally, no probing
)

// Config represents the top-level fleetmux configuration.
type Config struct {
	UI        UIConfig      `toml:"ui"`
	Colors    ColorConfig   `toml:"colors"`
	SSH       SSHConfig     `toml:"ssh"`
	Local     LocalConfig   `toml:"local"`
	Hosts     []Host        `toml:"hosts"`
	Tracked   []TrackedPane `toml:"tracked"`
	Bookmarks []TrackedPane `toml:"bookmarks"`
}

// UIConfig holds dashboard display options.
type UIConfig struct {
	RefreshMS int    `toml:"refresh_ms"`
	Lines     int    `toml:"lines"`
	Layout    string `toml:"layout"`
	Theme     string `toml:"theme"`
	Compact   bool   `toml:"compact"`
	ANSI      bool   `toml:"ansi"`
	JoinLines bool   `toml:"join_lines"`
}

// RefreshInterval returns the poller refresh interval.
func (u UIConfig) RefreshInterval() time.Duration {
	return time.Duration(u.RefreshMS) * time.Millisecond
}

// StaleAfter returns the staleness window: a pane whose content has not
// changed for longer than this is rendered dimmed.
func (u UIConfig) StaleAfter() time.Duration {
	return 2 * u.RefreshInterval()
}

// ColorConfig holds the ordered palette used for hosts without an
// explicit color. Order matters: the host-name hash indexes into it.
type ColorConfig struct {
	DefaultHostPalette []string `toml:"default_host_palette"`
}

// SSHConfig holds options applied to every remote invocation.
type SSHConfig struct {
	ConnectTimeoutSec int      `toml:"connect_timeout_sec"`
	ControlMaster     bool     `toml:"control_master"`
	ControlPersistSec int      `toml:"control_persist_sec"`
	PathExtra         []string `toml:"path_extra"`
}

// ConnectTimeout returns the probe/connect timeout, never below one second.
func (s SSHConfig) ConnectTimeout() time.Duration {
	sec := s.ConnectTimeoutSec
	if sec < 1 {
		sec = 1
	}
	return time.Duration(sec) * time.Second
}

// LocalConfig declares the pseudo-host whose commands run on this machine.
type LocalConfig struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
	Color   string `toml:"color,omitempty"`
}

// Host is a logical host: a name reachable via an ordered list of targets.
type Host struct {
	Name     string   `toml:"name"`
	Targets  []string `toml:"targets"`
	Strategy string   `toml:"strategy,omitempty"`
	Color    string   `toml:"color,omitempty"`
	Tags     []string `toml:"tags,omitempty"`
}

// TrackedPane identifies one pane mirrored on the dashboard.
// Identity key is (host, session, window, pane_id).
type TrackedPane struct {
	Host    string `toml:"host"`
	Session string `toml:"session"`
	Window  int    `toml:"window"`
	PaneID  string `toml:"pane_id"`
	Label   string `toml:"label,omitempty"`
}

// Default returns a Config with documented default values.
func Default() *Config {
	return &Config{
		UI: UIConfig{
			RefreshMS: 750,
			Lines:     40,
			Layout:    "auto",
			Theme:     "default",
			ANSI:      true,
		},
		Colors: ColorConfig{
			DefaultHostPalette: []string{
				"Blue", "Cyan", "Green", "Magenta",
				"Yellow", "LightBlue", "LightGreen",
			},
		},
		SSH: SSHConfig{
			ConnectTimeoutSec: 2,
			ControlMaster:     true,
			ControlPersistSec: 600,
			PathExtra:         []string{"/usr/local/bin", "/opt/homebrew/bin"},
		},
		Local: LocalConfig{
			Enabled: true,
			Name:    "local",
		},
	}
}

// DefaultPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "fleetmux", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fleetmux", "config.toml")
}

// Load reads and parses a config TOML file from the given path.
// Absent fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to the given file path as TOML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return nil
}

// AllHosts returns the configured hosts plus the local pseudo-host
// when it is enabled.
func (c *Config) AllHosts() []Host {
	hosts := make([]Host, 0, len(c.Hosts)+1)
	if c.Local.Enabled {
		hosts = append(hosts, Host{
			Name:     c.Local.Name,
			Targets:  []string{"local"},
			Strategy: StrategyLocal,
			Color:    c.Local.Color,
		})
	}
	return append(hosts, c.Hosts...)
}

// HostByName looks up a host (including the local pseudo-host) by name.
func (c *Config) HostByName(name string) (Host, bool) {
	for _, h := range c.AllHosts() {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// Validate checks the config for logical errors. It runs before any
// polling starts; a failure here is surfaced once, synchronously.
func (c *Config) Validate() error {
	if c.UI.RefreshMS <= 0 {
		return fmt.Errorf("ui.refresh_ms must be positive, got %d", c.UI.RefreshMS)
	}
	if c.UI.Lines <= 0 {
		return fmt.Errorf("ui.lines must be positive, got %d", c.UI.Lines)
	}
	if c.SSH.ConnectTimeoutSec < 0 {
		return fmt.Errorf("ssh.connect_timeout_sec must be non-negative, got %d", c.SSH.ConnectTimeoutSec)
	}

	seen := make(map[string]bool)
	if c.Local.Enabled {
		if c.Local.Name == "" {
			return fmt.Errorf("local.name must not be empty when local is enabled")
		}
		seen[c.Local.Name] = true
	}
	for _, host := range c.Hosts {
		if host.Name == "" {
			return fmt.Errorf("host with empty name")
		}
		if seen[host.Name] {
			return fmt.Errorf("duplicate host name %q", host.Name)
		}
		seen[host.Name] = true
		if len(host.Targets) == 0 {
			return fmt.Errorf("host %q has no targets", host.Name)
		}
		switch host.Strategy {
		case "", StrategyAuto, StrategyPinned:
		default:
			return fmt.Errorf("host %q has unknown strategy %q", host.Name, host.Strategy)
		}
	}

	if len(c.Tracked) > MaxTrackedPanes {
		return fmt.Errorf("tracked panes exceed capacity: %d > %d", len(c.Tracked), MaxTrackedPanes)
	}

	paneSeen := make(map[TrackedPane]bool)
	for _, pane := range c.Tracked {
		if !seen[pane.Host] {
			return fmt.Errorf("tracked pane %s references unknown host %q", pane.PaneID, pane.Host)
		}
		id := TrackedPane{Host: pane.Host, Session: pane.Session, Window: pane.Window, PaneID: pane.PaneID}
		if paneSeen[id] {
			return fmt.Errorf("duplicate tracked pane %s:%s:%d:%s", pane.Host, pane.Session, pane.Window, pane.PaneID)
		}
		paneSeen[id] = true
	}

	for _, pane := range c.Bookmarks {
		id := TrackedPane{Host: pane.Host, Session: pane.Session, Window: pane.Window, PaneID: pane.PaneID}
		if !paneSeen[id] {
			return fmt.Errorf("bookmark %s:%s:%d:%s is not a tracked pane", pane.Host, pane.Session, pane.Window, pane.PaneID)
		}
	}

	return nil
}
