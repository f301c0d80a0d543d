package fleet

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/tmux"
)

// downAfterFailures is how many consecutive capture failures flip a pane
// to DOWN when the host itself still resolves. A host that fails
// resolution is DOWN immediately; a flaky single capture is not.
const downAfterFailures = 3

// PaneView is a read-only copy of one pane's state, safe to hand to
// rendering without holding the store lock.
type PaneView struct {
	Key         Key
	Label       string
	Status      Status
	Capture     tmux.Capture
	LastUpdate  time.Time
	LastChanged time.Time
	Failures    int
	Err         error
	Bookmarked  bool
}

type paneState struct {
	tracked    config.TrackedPane
	bookmarked bool

	capture     tmux.Capture
	haveCapture bool

	// lastAccepted orders snapshots: anything not strictly newer is dropped.
	lastAccepted time.Time
	lastUpdate   time.Time
	lastChanged  time.Time
	lastHash     uint64

	failures int
	hostDown bool
	err      error
}

// Store is the single authoritative map from pane identity to state.
// All mutation goes through Apply and SetTracked; readers get copies.
type Store struct {
	mu    sync.RWMutex
	panes map[Key]*paneState
	order []Key

	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the debug logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a store. staleAfter is how long a pane may go without
// a content change before it renders as STALE.
func NewStore(staleAfter time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		panes:      make(map[Key]*paneState),
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTracked replaces the tracked set. Panes that survive the change keep
// their state; removed panes are dropped, added panes start empty.
func (s *Store) SetTracked(tracked, bookmarks []config.TrackedPane) {
	marked := make(map[Key]bool, len(bookmarks))
	for _, b := range bookmarks {
		marked[KeyFor(b)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[Key]*paneState, len(tracked))
	order := make([]Key, 0, len(tracked))
	for _, tp := range tracked {
		key := KeyFor(tp)
		state, ok := s.panes[key]
		if !ok {
			state = &paneState{}
		}
		state.tracked = tp
		state.bookmarked = marked[key]
		next[key] = state
		order = append(order, key)
	}
	s.panes = next
	s.order = order
}

// Apply folds one snapshot into the store. Out-of-order and unknown-pane
// snapshots are dropped. Returns whether the snapshot was accepted.
func (s *Store) Apply(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.panes[snap.Key]
	if !ok {
		s.logger.Debug("snapshot for untracked pane dropped", "key", snap.Key.String())
		return false
	}
	if !snap.CapturedAt.After(p.lastAccepted) {
		s.logger.Debug("out-of-order snapshot dropped",
			"key", snap.Key.String(),
			"captured_at", snap.CapturedAt,
			"last_accepted", p.lastAccepted)
		return false
	}
	p.lastAccepted = snap.CapturedAt

	if !snap.Success {
		p.failures++
		p.hostDown = snap.HostDown
		p.err = snap.Err
		return true
	}

	hash := HashCapture(snap.Capture)
	if !p.haveCapture || hash != p.lastHash {
		p.lastChanged = snap.CapturedAt
	}
	p.lastHash = hash
	p.capture = snap.Capture
	p.haveCapture = true
	p.lastUpdate = snap.CapturedAt
	p.failures = 0
	p.hostDown = false
	p.err = nil
	return true
}

func (s *Store) status(p *paneState) Status {
	if p.hostDown || p.failures >= downAfterFailures {
		return StatusDown
	}
	if !p.haveCapture {
		return StatusStale
	}
	if s.now().Sub(p.lastChanged) > s.staleAfter {
		return StatusStale
	}
	return StatusOK
}

func (s *Store) viewLocked(key Key) PaneView {
	p := s.panes[key]
	view := PaneView{
		Key:         key,
		Label:       p.tracked.Label,
		Status:      s.status(p),
		LastUpdate:  p.lastUpdate,
		LastChanged: p.lastChanged,
		Failures:    p.failures,
		Err:         p.err,
		Bookmarked:  p.bookmarked,
	}
	view.Capture = tmux.Capture{
		Command: p.capture.Command,
		Title:   p.capture.Title,
		Lines:   append([]string(nil), p.capture.Lines...),
	}
	return view
}

// View returns a copy of every pane's state in tracked order.
func (s *Store) View() []PaneView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]PaneView, 0, len(s.order))
	for _, key := range s.order {
		views = append(views, s.viewLocked(key))
	}
	return views
}

// Pane returns the state of a single pane.
func (s *Store) Pane(key Key) (PaneView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.panes[key]; !ok {
		return PaneView{}, false
	}
	return s.viewLocked(key), true
}

// Bookmarks returns bookmarked pane keys in tracked order.
func (s *Store) Bookmarks() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []Key
	for _, key := range s.order {
		if s.panes[key].bookmarked {
			keys = append(keys, key)
		}
	}
	return keys
}

// Activity classifies a pane: Active if its content changed within
// activeWindow, Idle if nothing changed for idleAfter or longer, Quiet
// otherwise. Non-OK panes are always Quiet.
func (s *Store) Activity(key Key, activeWindow, idleAfter time.Duration) Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.panes[key]
	if !ok || s.status(p) != StatusOK || p.lastChanged.IsZero() {
		return ActivityQuiet
	}
	age := s.now().Sub(p.lastChanged)
	switch {
	case age <= activeWindow:
		return ActivityActive
	case age >= idleAfter:
		return ActivityIdle
	}
	return ActivityQuiet
}
