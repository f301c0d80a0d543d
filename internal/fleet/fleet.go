// Package fleet holds the authoritative state for every tracked pane:
// the latest accepted capture, change detection, and the derived
// OK/STALE/DOWN status the dashboard renders.
package fleet

import (
	"fmt"
	"time"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Key identifies one tracked pane across the fleet.
type Key struct {
	Host    string
	Session string
	Window  int
	PaneID  string
}

// KeyFor builds a Key from a tracked-pane config entry.
func KeyFor(tp config.TrackedPane) Key {
	return Key{Host: tp.Host, Session: tp.Session, Window: tp.Window, PaneID: tp.PaneID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%s", k.Host, k.Session, k.Window, k.PaneID)
}

// Snapshot is one poll result for one pane. Snapshots are immutable;
// pollers publish them and the store's Apply is the only consumer that
// mutates state from them.
type Snapshot struct {
	Key        Key
	CapturedAt time.Time
	Capture    tmux.Capture
	Success    bool
	HostDown   bool
	Err        error
}

// Status is the derived health of a pane.
type Status int

const (
	StatusOK Status = iota
	StatusStale
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusStale:
		return "STALE"
	case StatusDown:
		return "DOWN"
	}
	return "UNKNOWN"
}

// Activity classifies how recently a pane's content changed.
type Activity int

const (
	ActivityQuiet Activity = iota
	ActivityActive
	ActivityIdle
)

func (a Activity) String() string {
	switch a {
	case ActivityActive:
		return "active"
	case ActivityIdle:
		return "idle"
	}
	return "quiet"
}

// fnv-1a, matching the stable hash used for persisted color assignment.
const (
	fnvOffset = 0xcbf29ce484222325
	fnvPrime  = 0x100000001b3
)

// HashCapture computes a change-detection hash over the capture body and
// the current foreground command. Title changes alone do not count as
// activity.
func HashCapture(c tmux.Capture) uint64 {
	var hash uint64 = fnvOffset
	for _, line := range c.Lines {
		for i := 0; i < len(line); i++ {
			hash ^= uint64(line[i])
			hash *= fnvPrime
		}
		hash ^= uint64('\n')
		hash *= fnvPrime
	}
	for i := 0; i < len(c.Command); i++ {
		hash ^= uint64(c.Command[i])
		hash *= fnvPrime
	}
	return hash
}
