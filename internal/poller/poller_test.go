package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/resolve"
	"github.com/agent462/fleetmux/internal/runner"
)

type mockRunner struct {
	mu sync.Mutex
	fn func(target, command string) *runner.Result
}

func (m *mockRunner) Run(ctx context.Context, target, command string) *runner.Result {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	return fn(target, command)
}

func (m *mockRunner) set(fn func(target, command string) *runner.Result) {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
}

type okProber struct{}

func (okProber) Probe(ctx context.Context, target string) error { return nil }

var localHost = config.Host{Name: "laptop", Targets: []string{"local"}, Strategy: config.StrategyLocal}

func captureOutput(lines ...string) []byte {
	out := "bash\ttitle\n"
	for _, l := range lines {
		out += l + "\n"
	}
	return []byte(out)
}

func newTestGroup(t *testing.T, run runner.Runner, hosts ...config.Host) *Group {
	t.Helper()
	if len(hosts) == 0 {
		hosts = []config.Host{localHost}
	}
	g := NewGroup(
		Config{Interval: 10 * time.Millisecond, Lines: 40, Timeout: time.Second},
		resolve.New(okProber{}),
		run,
		hosts,
		nil,
	)
	t.Cleanup(g.Stop)
	return g
}

func recvSnapshot(t *testing.T, g *Group) fleet.Snapshot {
	t.Helper()
	select {
	case snap := <-g.Updates():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return fleet.Snapshot{}
	}
}

func TestWorkerPublishesSnapshots(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, Stdout: captureOutput("$ make")}
	})

	g := newTestGroup(t, run)
	tp := config.TrackedPane{Host: "laptop", Session: "main", Window: 0, PaneID: "%0"}
	g.SetTracked([]config.TrackedPane{tp})

	snap := recvSnapshot(t, g)
	if !snap.Success {
		t.Fatalf("expected success, got err=%v", snap.Err)
	}
	if snap.Key != fleet.KeyFor(tp) {
		t.Errorf("key = %v", snap.Key)
	}
	if snap.Capture.Command != "bash" {
		t.Errorf("command = %q", snap.Capture.Command)
	}
	if len(snap.Capture.Lines) != 1 || snap.Capture.Lines[0] != "$ make" {
		t.Errorf("lines = %q", snap.Capture.Lines)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("snapshot missing timestamp")
	}

	// Successive snapshots carry strictly increasing timestamps.
	next := recvSnapshot(t, g)
	if !next.CapturedAt.After(snap.CapturedAt) {
		t.Errorf("timestamps not increasing: %v then %v", snap.CapturedAt, next.CapturedAt)
	}
}

func TestWorkerPublishesFailure(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, ExitCode: 1, Stderr: []byte("no server running")}
	})

	g := newTestGroup(t, run)
	g.SetTracked([]config.TrackedPane{{Host: "laptop", Session: "main", Window: 0, PaneID: "%0"}})

	snap := recvSnapshot(t, g)
	if snap.Success {
		t.Fatal("expected a failed snapshot")
	}
	if snap.Err == nil {
		t.Error("failed snapshot should carry an error")
	}
}

func TestCaptureFailureInvalidatesResolution(t *testing.T) {
	host := config.Host{Name: "web", Targets: []string{"web.local"}, Strategy: config.StrategyAuto}

	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, ExitCode: 1, Stderr: []byte("boom")}
	})

	// A long interval keeps the worker from re-resolving before the
	// cache assertion below runs.
	resolver := resolve.New(okProber{})
	g := NewGroup(
		Config{Interval: time.Minute, Lines: 40, Timeout: time.Second},
		resolver,
		run,
		[]config.Host{host},
		nil,
	)
	t.Cleanup(g.Stop)
	g.SetTracked([]config.TrackedPane{{Host: "web", Session: "main", Window: 0, PaneID: "%0"}})

	snap := recvSnapshot(t, g)
	if snap.Success {
		t.Fatal("expected failure")
	}
	if _, ok := resolver.Cached("web"); ok {
		t.Error("capture failure should invalidate the cached target")
	}
}

func TestUnknownHostIsDown(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target}
	})

	g := newTestGroup(t, run)
	g.SetTracked([]config.TrackedPane{{Host: "ghost", Session: "main", Window: 0, PaneID: "%0"}})

	snap := recvSnapshot(t, g)
	if snap.Success || !snap.HostDown {
		t.Errorf("unknown host should publish a host-down snapshot, got %+v", snap)
	}
}

func TestHostAddedAfterStartup(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, Stdout: captureOutput("$ cargo build")}
	})

	// The group starts knowing only the local host; "buildbox" is added
	// later, the way setup grows the host list mid-run.
	g := newTestGroup(t, run)
	added := config.Host{Name: "buildbox", Targets: []string{"buildbox.local"}, Strategy: config.StrategyAuto}
	g.SetHosts([]config.Host{localHost, added})
	g.SetTracked([]config.TrackedPane{{Host: "buildbox", Session: "main", Window: 0, PaneID: "%3"}})

	snap := recvSnapshot(t, g)
	if snap.HostDown {
		t.Fatalf("added host treated as unknown: %v", snap.Err)
	}
	if !snap.Success {
		t.Fatalf("expected a capture from the added host, got err=%v", snap.Err)
	}
	if snap.Capture.Lines[0] != "$ cargo build" {
		t.Errorf("lines = %q", snap.Capture.Lines)
	}
}

func TestSetHostsRetargets(t *testing.T) {
	var mu sync.Mutex
	var targets []string
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		mu.Lock()
		targets = append(targets, target)
		mu.Unlock()
		return &runner.Result{Target: target, Stdout: captureOutput("x")}
	})

	web := config.Host{Name: "web", Targets: []string{"web-a.local"}, Strategy: config.StrategyPinned}
	resolver := resolve.New(okProber{})
	g := NewGroup(
		Config{Interval: 10 * time.Millisecond, Lines: 40, Timeout: time.Second},
		resolver,
		run,
		[]config.Host{web},
		nil,
	)
	t.Cleanup(g.Stop)
	g.SetTracked([]config.TrackedPane{{Host: "web", Session: "main", Window: 0, PaneID: "%0"}})
	recvSnapshot(t, g)

	// Re-point the host at a new target; the stale cache entry must not
	// keep winning.
	web.Targets = []string{"web-b.local"}
	g.SetHosts([]config.Host{web})
	resolver.Invalidate("web")

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		last := ""
		if len(targets) > 0 {
			last = targets[len(targets)-1]
		}
		mu.Unlock()
		if last == "web-b.local" {
			return
		}
		select {
		case <-g.Updates():
		case <-deadline:
			t.Fatalf("worker never reached the new target, last polled %q", last)
		}
	}
}

func TestPauseResume(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, Stdout: captureOutput("x")}
	})

	g := newTestGroup(t, run)
	g.SetTracked([]config.TrackedPane{{Host: "laptop", Session: "main", Window: 0, PaneID: "%0"}})
	recvSnapshot(t, g)

	g.Pause()

	// Drain anything that was in flight when the gate dropped, then
	// expect silence.
	deadline := time.After(100 * time.Millisecond)
drain:
	for {
		select {
		case <-g.Updates():
		case <-deadline:
			break drain
		}
	}
	select {
	case snap := <-g.Updates():
		t.Fatalf("paused group published %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}

	// Resume must publish promptly, not wait out a full interval backlog.
	g.Resume()
	recvSnapshot(t, g)
}

func TestSetTrackedStopsRemovedWorkers(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, Stdout: captureOutput("x")}
	})

	g := newTestGroup(t, run)
	tpA := config.TrackedPane{Host: "laptop", Session: "main", Window: 0, PaneID: "%0"}
	tpB := config.TrackedPane{Host: "laptop", Session: "main", Window: 1, PaneID: "%1"}
	g.SetTracked([]config.TrackedPane{tpA, tpB})
	recvSnapshot(t, g)

	g.SetTracked([]config.TrackedPane{tpA})

	// Everything published from here on belongs to the surviving pane,
	// allowing for snapshots already buffered before the removal.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 20; i++ {
		select {
		case snap := <-g.Updates():
			if i > 10 && snap.Key != fleet.KeyFor(tpA) {
				t.Fatalf("removed pane still publishing: %v", snap.Key)
			}
		case <-time.After(time.Second):
			t.Fatal("surviving worker stopped publishing")
		}
	}
}

func TestStopClosesUpdates(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		return &runner.Result{Target: target, Stdout: captureOutput("x")}
	})

	g := newTestGroup(t, run)
	g.SetTracked([]config.TrackedPane{{Host: "laptop", Session: "main", Window: 0, PaneID: "%0"}})
	recvSnapshot(t, g)

	g.Stop()

	// The channel must drain and close.
	for {
		select {
		case _, ok := <-g.Updates():
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("updates channel never closed")
		}
	}
}

func TestPollErrorsDoNotCrossPanes(t *testing.T) {
	run := &mockRunner{}
	run.set(func(target, command string) *runner.Result {
		if target == "bad.local" {
			return &runner.Result{Target: target, ExitCode: -1, Err: fmt.Errorf("connect: refused")}
		}
		return &runner.Result{Target: target, Stdout: captureOutput("fine")}
	})

	good := config.Host{Name: "good", Targets: []string{"good.local"}, Strategy: config.StrategyAuto}
	bad := config.Host{Name: "bad", Targets: []string{"bad.local"}, Strategy: config.StrategyPinned}

	g := newTestGroup(t, run, good, bad)
	g.SetTracked([]config.TrackedPane{
		{Host: "good", Session: "main", Window: 0, PaneID: "%0"},
		{Host: "bad", Session: "main", Window: 0, PaneID: "%0"},
	})

	sawGood := false
	sawBad := false
	timeout := time.After(2 * time.Second)
	for !sawGood || !sawBad {
		select {
		case snap := <-g.Updates():
			switch snap.Key.Host {
			case "good":
				if snap.Success {
					sawGood = true
				}
			case "bad":
				if !snap.Success {
					sawBad = true
				}
			}
		case <-timeout:
			t.Fatalf("missing snapshots: good=%v bad=%v", sawGood, sawBad)
		}
	}
}
