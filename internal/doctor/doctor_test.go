package doctor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/runner"
)

type fakeResolver struct {
	targets map[string]string
	errs    map[string]error
}

func (r *fakeResolver) Resolve(ctx context.Context, host config.Host) (string, error) {
	if err := r.errs[host.Name]; err != nil {
		return "", err
	}
	return r.targets[host.Name], nil
}

type fakeRunner struct {
	fn func(target, command string) *runner.Result
}

func (f *fakeRunner) Run(ctx context.Context, target, command string) *runner.Result {
	return f.fn(target, command)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Local.Enabled = false
	cfg.Hosts = []config.Host{
		{Name: "web", Targets: []string{"web.local"}, Strategy: config.StrategyAuto, Color: "cyan"},
		{Name: "db", Targets: []string{"db.local"}, Strategy: config.StrategyAuto},
	}
	return cfg
}

func healthyRunner() *fakeRunner {
	return &fakeRunner{fn: func(target, command string) *runner.Result {
		var out string
		switch {
		case strings.Contains(command, "tmux -V"):
			out = "tmux 3.4\n"
		case strings.Contains(command, "list-windows"):
			out = "main\t0\teditor\nmain\t1\tshell\n"
		case strings.Contains(command, "list-panes"):
			out = "main\t0\t%0\tvim\tserver.go\nmain\t1\t%1\tbash\t\n"
		case strings.Contains(command, "capture-pane"):
			out = "vim\tserver.go\nfunc main() {\n}\n"
		}
		return &runner.Result{Target: target, Stdout: []byte(out)}
	}}
}

func TestRunHealthy(t *testing.T) {
	cfg := testConfig()
	resolver := &fakeResolver{targets: map[string]string{"web": "web.local", "db": "db.local"}}

	var buf bytes.Buffer
	if err := Run(context.Background(), cfg, resolver, healthyRunner(), &buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"fleetmux doctor",
		"Hosts: 2",
		"Host: web",
		"Targets: web.local",
		"Color: cyan",
		"Resolved target: web.local",
		"tmux: tmux 3.4",
		"Windows: 2",
		"  main:0 editor",
		"Panes: 2",
		"  main:0 %0 vim server.go",
		"Capture sample: main:0 %0",
		"  func main() {",
		"Host: db",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}

	// Hosts print in config order regardless of check completion order.
	if strings.Index(out, "Host: web") > strings.Index(out, "Host: db") {
		t.Error("hosts out of order")
	}
}

func TestRunResolveFailureDoesNotStopOthers(t *testing.T) {
	cfg := testConfig()
	resolver := &fakeResolver{
		targets: map[string]string{"db": "db.local"},
		errs:    map[string]error{"web": fmt.Errorf("host web down: connection refused")},
	}

	var buf bytes.Buffer
	if err := Run(context.Background(), cfg, resolver, healthyRunner(), &buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Resolve error: host web down") {
		t.Errorf("missing resolve error:\n%s", out)
	}
	if !strings.Contains(out, "Resolved target: db.local") {
		t.Errorf("healthy host missing from report:\n%s", out)
	}
}

func TestRunTmuxMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Hosts = cfg.Hosts[:1]
	resolver := &fakeResolver{targets: map[string]string{"web": "web.local"}}
	run := &fakeRunner{fn: func(target, command string) *runner.Result {
		return &runner.Result{Target: target, ExitCode: 127, Stderr: []byte("tmux: command not found")}
	}}

	var buf bytes.Buffer
	if err := Run(context.Background(), cfg, resolver, run, &buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "tmux error:") {
		t.Errorf("missing tmux error:\n%s", buf.String())
	}
}

func TestRunIncludesLocalHost(t *testing.T) {
	cfg := testConfig()
	cfg.Hosts = nil
	cfg.Local.Enabled = true
	cfg.Local.Name = "laptop"
	resolver := &fakeResolver{targets: map[string]string{"laptop": runner.LocalTarget}}

	var buf bytes.Buffer
	if err := Run(context.Background(), cfg, resolver, healthyRunner(), &buf); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "Host: laptop") {
		t.Errorf("local pseudo-host missing:\n%s", buf.String())
	}
}
