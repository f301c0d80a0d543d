// Package dashboard renders the read-only fleet grid: one tile per
// tracked pane, tinted by host, with a quick-jump strip for bookmarks.
// The model never talks to the network; it re-reads the fleet store on
// a timer and emits an Outcome when the user leaves the dashboard.
package dashboard

import (
	"math"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/palette"
)

// StateReader is the slice of the fleet store the dashboard renders.
type StateReader interface {
	View() []fleet.PaneView
	Bookmarks() []fleet.Key
}

// Outcome says why the dashboard exited.
type Outcome int

const (
	OutcomeQuit Outcome = iota
	OutcomeSetup
	OutcomeTakeControl
)

// Config holds the parameters needed to create a dashboard Model.
type Config struct {
	Store     StateReader
	HostColor func(host string) palette.Color
	Refresh   time.Duration
	Compact   bool
}

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	store     StateReader
	hostColor func(host string) palette.Color
	refresh   time.Duration
	compact   bool

	panes     []fleet.PaneView
	bookmarks []fleet.Key

	focused  int
	zoomed   bool
	showHelp bool

	outcome Outcome
	target  fleet.Key

	width  int
	height int
}

// New creates a dashboard Model from the given config.
func New(cfg Config) Model {
	if cfg.Refresh == 0 {
		cfg.Refresh = 200 * time.Millisecond
	}
	if cfg.HostColor == nil {
		cfg.HostColor = func(string) palette.Color { return palette.Default }
	}
	return Model{
		store:     cfg.Store,
		hostColor: cfg.HostColor,
		refresh:   cfg.Refresh,
		compact:   cfg.Compact,
		panes:     cfg.Store.View(),
		bookmarks: cfg.Store.Bookmarks(),
	}
}

// Outcome reports why the dashboard exited and, for take-control, which
// pane was chosen. Read it after the program returns.
func (m Model) Outcome() (Outcome, fleet.Key) {
	return m.outcome, m.target
}

// Init starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return refreshCmd(m.refresh)
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case refreshMsg:
		m.panes = m.store.View()
		m.bookmarks = m.store.Bookmarks()
		if len(m.panes) > 0 && m.focused >= len(m.panes) {
			m.focused = len(m.panes) - 1
		}
		return m, refreshCmd(m.refresh)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.Key()

	if m.showHelp {
		if key.Code == tea.KeyEscape || msg.String() == "?" || msg.String() == "q" {
			m.showHelp = false
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.outcome = OutcomeQuit
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "z":
		m.zoomed = !m.zoomed
		return m, nil
	case "s":
		m.outcome = OutcomeSetup
		return m, tea.Quit
	case "h":
		return m.moveFocus(moveLeft), nil
	case "l":
		return m.moveFocus(moveRight), nil
	case "k":
		return m.moveFocus(moveUp), nil
	case "j":
		return m.moveFocus(moveDown), nil
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		return m.jumpBookmark(int(msg.String()[0] - '1')), nil
	}

	switch key.Code {
	case tea.KeyEnter:
		return m.takeControl()
	case tea.KeyTab:
		return m.moveFocus(moveNext), nil
	case tea.KeyLeft:
		return m.moveFocus(moveLeft), nil
	case tea.KeyRight:
		return m.moveFocus(moveRight), nil
	case tea.KeyUp:
		return m.moveFocus(moveUp), nil
	case tea.KeyDown:
		return m.moveFocus(moveDown), nil
	}
	return m, nil
}

// takeControl exits with a take-control outcome unless the focused pane
// is DOWN, which the controller would refuse anyway.
func (m Model) takeControl() (tea.Model, tea.Cmd) {
	if len(m.panes) == 0 {
		return m, nil
	}
	pane := m.panes[m.focused]
	if pane.Status == fleet.StatusDown {
		return m, nil
	}
	m.outcome = OutcomeTakeControl
	m.target = pane.Key
	return m, tea.Quit
}

func (m Model) jumpBookmark(idx int) Model {
	if idx >= len(m.bookmarks) {
		return m
	}
	want := m.bookmarks[idx]
	for i, pane := range m.panes {
		if pane.Key == want {
			m.focused = i
			break
		}
	}
	return m
}

type focusMove int

const (
	moveNext focusMove = iota
	moveLeft
	moveRight
	moveUp
	moveDown
)

func (m Model) moveFocus(dir focusMove) Model {
	count := len(m.panes)
	if count == 0 {
		return m
	}
	if dir == moveNext {
		m.focused = (m.focused + 1) % count
		return m
	}

	rows, cols := gridDimensions(count)
	row := m.focused / cols
	col := m.focused % cols

	switch dir {
	case moveLeft:
		if col > 0 {
			col--
		}
	case moveRight:
		if col < cols-1 {
			col++
		}
	case moveUp:
		if row > 0 {
			row--
		}
	case moveDown:
		if row < rows-1 {
			row++
		}
	}

	index := row*cols + col
	if index >= count {
		index = count - 1
	}
	m.focused = index
	return m
}

// gridDimensions lays count tiles out in a near-square grid.
func gridDimensions(count int) (rows, cols int) {
	cols = int(math.Ceil(math.Sqrt(float64(count))))
	if cols < 1 {
		cols = 1
	}
	rows = (count + cols - 1) / cols
	return rows, cols
}
