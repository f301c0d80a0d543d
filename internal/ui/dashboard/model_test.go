package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/tmux"
)

type fakeStore struct {
	panes     []fleet.PaneView
	bookmarks []fleet.Key
}

func (s *fakeStore) View() []fleet.PaneView { return s.panes }
func (s *fakeStore) Bookmarks() []fleet.Key { return s.bookmarks }

func paneView(host, session string, window int, paneID string, status fleet.Status) fleet.PaneView {
	return fleet.PaneView{
		Key:        fleet.Key{Host: host, Session: session, Window: window, PaneID: paneID},
		Status:     status,
		Capture:    tmux.Capture{Command: "bash", Lines: []string{"$ echo hi", "hi"}},
		LastUpdate: time.Now(),
	}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func keyPress(t *testing.T, m Model, s string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyPressMsg
	switch s {
	case "enter":
		msg = tea.KeyPressMsg{Code: tea.KeyEnter}
	case "tab":
		msg = tea.KeyPressMsg{Code: tea.KeyTab}
	case "down":
		msg = tea.KeyPressMsg{Code: tea.KeyDown}
	default:
		msg = tea.KeyPressMsg{Code: rune(s[0]), Text: s}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func fourPanes() *fakeStore {
	return &fakeStore{panes: []fleet.PaneView{
		paneView("web", "main", 0, "%0", fleet.StatusOK),
		paneView("web", "main", 1, "%1", fleet.StatusOK),
		paneView("db", "main", 0, "%2", fleet.StatusOK),
		paneView("db", "logs", 0, "%3", fleet.StatusOK),
	}}
}

func TestViewRendersTiles(t *testing.T) {
	m := sized(t, New(Config{Store: fourPanes()}))

	content := m.View().Content
	for _, want := range []string{"web", "db", "main:0", "logs:0", "hi"} {
		if !strings.Contains(content, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmptyState(t *testing.T) {
	m := sized(t, New(Config{Store: &fakeStore{}}))
	if !strings.Contains(m.View().Content, "No tracked panes") {
		t.Error("empty dashboard should prompt for setup")
	}
}

func TestFocusMovement(t *testing.T) {
	// Four panes lay out as a 2x2 grid.
	m := sized(t, New(Config{Store: fourPanes()}))

	m, _ = keyPress(t, m, "tab")
	if m.focused != 1 {
		t.Errorf("tab: focused = %d, want 1", m.focused)
	}
	m, _ = keyPress(t, m, "j")
	if m.focused != 3 {
		t.Errorf("j: focused = %d, want 3", m.focused)
	}
	m, _ = keyPress(t, m, "h")
	if m.focused != 2 {
		t.Errorf("h: focused = %d, want 2", m.focused)
	}
	m, _ = keyPress(t, m, "k")
	if m.focused != 0 {
		t.Errorf("k: focused = %d, want 0", m.focused)
	}
	// Movement clamps at edges.
	m, _ = keyPress(t, m, "h")
	if m.focused != 0 {
		t.Errorf("h at edge: focused = %d, want 0", m.focused)
	}
}

func TestEnterEmitsTakeControl(t *testing.T) {
	m := sized(t, New(Config{Store: fourPanes()}))
	m, _ = keyPress(t, m, "tab")
	m, cmd := keyPress(t, m, "enter")

	if cmd == nil {
		t.Fatal("enter should quit the program")
	}
	outcome, key := m.Outcome()
	if outcome != OutcomeTakeControl {
		t.Fatalf("outcome = %v", outcome)
	}
	if key.PaneID != "%1" {
		t.Errorf("take-control target = %v", key)
	}
}

func TestEnterRefusedOnDownPane(t *testing.T) {
	store := fourPanes()
	store.panes[0].Status = fleet.StatusDown

	m := sized(t, New(Config{Store: store}))
	m, cmd := keyPress(t, m, "enter")
	if cmd != nil {
		t.Error("enter on a DOWN pane must not quit")
	}
	if outcome, _ := m.Outcome(); outcome == OutcomeTakeControl {
		t.Error("DOWN pane must not become a take-control target")
	}
}

func TestSetupKey(t *testing.T) {
	m := sized(t, New(Config{Store: fourPanes()}))
	m, cmd := keyPress(t, m, "s")
	if cmd == nil {
		t.Fatal("s should quit into setup")
	}
	if outcome, _ := m.Outcome(); outcome != OutcomeSetup {
		t.Errorf("outcome = %v", outcome)
	}
}

func TestBookmarkJump(t *testing.T) {
	store := fourPanes()
	store.bookmarks = []fleet.Key{store.panes[3].Key, store.panes[1].Key}

	m := sized(t, New(Config{Store: store}))
	m, _ = keyPress(t, m, "2")
	if m.focused != 1 {
		t.Errorf("bookmark 2: focused = %d, want 1", m.focused)
	}
	m, _ = keyPress(t, m, "1")
	if m.focused != 3 {
		t.Errorf("bookmark 1: focused = %d, want 3", m.focused)
	}
	// A number past the strip is a no-op.
	m, _ = keyPress(t, m, "9")
	if m.focused != 3 {
		t.Errorf("bookmark 9: focused = %d, want 3", m.focused)
	}
}

func TestBookmarkStripRendered(t *testing.T) {
	store := fourPanes()
	store.bookmarks = []fleet.Key{store.panes[2].Key}

	m := sized(t, New(Config{Store: store}))
	if !strings.Contains(m.View().Content, "1:db main:0") {
		t.Error("bookmark strip missing")
	}
}

func TestZoomShowsOnlyFocusedPane(t *testing.T) {
	m := sized(t, New(Config{Store: fourPanes()}))
	m, _ = keyPress(t, m, "z")

	content := m.View().Content
	if strings.Contains(content, "logs:0") {
		t.Error("zoomed view should hide unfocused panes")
	}
	if !strings.Contains(content, "main:0") {
		t.Error("zoomed view should show the focused pane")
	}
}

func TestHelpOverlay(t *testing.T) {
	m := sized(t, New(Config{Store: fourPanes()}))
	m, _ = keyPress(t, m, "?")
	if !strings.Contains(m.View().Content, "take control") {
		t.Error("help overlay missing")
	}

	// q closes help instead of quitting.
	m, cmd := keyPress(t, m, "q")
	if cmd != nil {
		t.Error("q inside help should not quit")
	}
	if strings.Contains(m.View().Content, "toggle this help") {
		t.Error("help overlay should be closed")
	}
}

func TestRefreshRereadsStore(t *testing.T) {
	store := fourPanes()
	m := sized(t, New(Config{Store: store}))

	store.panes = store.panes[:2]
	next, cmd := m.Update(refreshMsg(time.Now()))
	m = next.(Model)
	if cmd == nil {
		t.Error("refresh should reschedule itself")
	}
	if len(m.panes) != 2 {
		t.Errorf("panes = %d after refresh, want 2", len(m.panes))
	}
}

func TestRefreshClampsFocus(t *testing.T) {
	store := fourPanes()
	m := sized(t, New(Config{Store: store}))
	m.focused = 3

	store.panes = store.panes[:1]
	next, _ := m.Update(refreshMsg(time.Now()))
	m = next.(Model)
	if m.focused != 0 {
		t.Errorf("focused = %d after shrink, want 0", m.focused)
	}
}

func TestGridDimensions(t *testing.T) {
	tests := []struct {
		count, rows, cols int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{4, 2, 2},
		{5, 2, 3},
		{9, 3, 3},
		{10, 3, 4},
	}
	for _, tt := range tests {
		rows, cols := gridDimensions(tt.count)
		if rows != tt.rows || cols != tt.cols {
			t.Errorf("gridDimensions(%d) = %d,%d, want %d,%d", tt.count, rows, cols, tt.rows, tt.cols)
		}
	}
}
