package palette

import (
	"testing"

	"github.com/agent462/fleetmux/internal/config"
)

var defaultNames = []string{"blue", "cyan", "green", "magenta", "yellow", "lightblue", "lightgreen"}

func TestColorForDeterministic(t *testing.T) {
	a := New(defaultNames)
	host := config.Host{Name: "buildbox"}

	first := a.ColorFor(host)
	for i := 0; i < 10; i++ {
		if got := a.ColorFor(host); got != first {
			t.Fatalf("assignment changed between calls: %v vs %v", got, first)
		}
	}

	// A fresh assignor over the same palette gives the same answer:
	// the mapping survives restarts.
	b := New(defaultNames)
	if got := b.ColorFor(host); got != first {
		t.Errorf("assignment not stable across assignors: %v vs %v", got, first)
	}
}

func TestColorForExplicitWins(t *testing.T) {
	a := New(defaultNames)
	host := config.Host{Name: "buildbox", Color: "Magenta"}

	got := a.ColorFor(host)
	want, _ := Parse("magenta")
	if got != want {
		t.Errorf("explicit color ignored: got %v, want %v", got, want)
	}
}

func TestColorForUnknownExplicitFallsThrough(t *testing.T) {
	a := New(defaultNames)
	withBad := a.ColorFor(config.Host{Name: "buildbox", Color: "chartreuse"})
	without := a.ColorFor(config.Host{Name: "buildbox"})
	if withBad != without {
		t.Errorf("unknown explicit color should fall back to the hash pick")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		name string
	}{
		{"blue", true, "blue"},
		{"Blue", true, "blue"},
		{" LIGHTBLUE ", true, "lightblue"},
		{"darkgray", true, "darkgray"},
		{"chartreuse", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		c, ok := Parse(tt.in)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && c.Name() != tt.name {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, c.Name(), tt.name)
		}
	}
}

func TestFocus(t *testing.T) {
	blue, _ := Parse("blue")
	lightBlue, _ := Parse("lightblue")
	if blue.Focus() != lightBlue {
		t.Errorf("focus(blue) = %v, want lightblue", blue.Focus().Name())
	}
	// Already-bright colors stay put.
	if lightBlue.Focus() != lightBlue {
		t.Errorf("focus(lightblue) = %v", lightBlue.Focus().Name())
	}
}

func TestNewDropsUnknownNames(t *testing.T) {
	a := New([]string{"blue", "nope", "green"})
	if len(a.palette) != 2 {
		t.Errorf("palette size = %d, want 2", len(a.palette))
	}

	// An all-unknown palette still assigns something.
	b := New([]string{"nope"})
	if got := b.ColorFor(config.Host{Name: "x"}); got != Default {
		t.Errorf("empty palette fallback = %v", got)
	}
}

func TestDistribution(t *testing.T) {
	// Different host names should not all land on one palette slot.
	a := New(defaultNames)
	seen := make(map[Color]bool)
	for _, name := range []string{"web", "db", "cache", "build", "ci", "edge", "worker", "gw"} {
		seen[a.ColorFor(config.Host{Name: name})] = true
	}
	if len(seen) < 2 {
		t.Errorf("8 hosts mapped to %d color(s)", len(seen))
	}
}
