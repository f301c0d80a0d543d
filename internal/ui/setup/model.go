// Package setup implements the discovery and selection flow: browse
// hosts, their windows, and their panes; pick up to the tracked-pane
// cap; mark bookmarks; and add or edit hosts. The model mutates the
// shared config's host list directly but only reports the tracked
// selection through its Result, which the mode controller persists.
package setup

import (
	"fmt"
	"sort"

	tea "charm.land/bubbletea/v2"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/tmux"
)

// Outcome says how the setup flow ended.
type Outcome int

const (
	OutcomeCancel Outcome = iota
	OutcomeSave
)

type focusColumn int

const (
	focusHosts focusColumn = iota
	focusWindows
	focusPanes
)

type windowKey struct {
	session string
	index   int
}

// hostData is the discovery result for one host.
type hostData struct {
	loading bool
	err     error
	windows []tmux.Window
	panes   map[windowKey][]tmux.Pane
}

// Model is the root Bubble Tea model for setup.
type Model struct {
	cfg        *config.Config
	discoverer Discoverer

	hosts []config.Host
	data  map[string]*hostData

	focus       focusColumn
	hostIndex   int
	windowIndex int
	paneIndex   int

	selection map[fleet.Key]bool
	bookmarks map[fleet.Key]bool
	labels    map[fleet.Key]string

	form          *hostForm
	confirmDelete int

	status string

	outcome Outcome
	tracked []config.TrackedPane
	marks   []config.TrackedPane

	width  int
	height int
}

// New creates a setup model seeded with the config's current selection.
func New(cfg *config.Config, discoverer Discoverer) Model {
	m := Model{
		cfg:           cfg,
		discoverer:    discoverer,
		hosts:         cfg.AllHosts(),
		data:          make(map[string]*hostData),
		selection:     make(map[fleet.Key]bool),
		bookmarks:     make(map[fleet.Key]bool),
		labels:        make(map[fleet.Key]string),
		confirmDelete: -1,
	}
	for _, tp := range cfg.Tracked {
		key := fleet.KeyFor(tp)
		m.selection[key] = true
		if tp.Label != "" {
			m.labels[key] = tp.Label
		}
	}
	for _, tp := range cfg.Bookmarks {
		key := fleet.KeyFor(tp)
		m.bookmarks[key] = true
		if tp.Label != "" {
			m.labels[key] = tp.Label
		}
	}
	return m
}

// Result reports the outcome and, on save, the selection. Read it after
// the program returns.
func (m Model) Result() (Outcome, []config.TrackedPane, []config.TrackedPane) {
	return m.outcome, m.tracked, m.marks
}

// Init kicks off discovery for the first host.
func (m Model) Init() tea.Cmd {
	return m.ensureHostLoaded()
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

	case hostLoadedMsg:
		data := &hostData{err: msg.err, windows: msg.windows}
		if msg.err == nil {
			data.panes = make(map[windowKey][]tmux.Pane)
			for _, pane := range msg.panes {
				wk := windowKey{session: pane.Session, index: pane.Window}
				data.panes[wk] = append(data.panes[wk], pane)
			}
		}
		m.data[msg.host] = data
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.form != nil {
		return m.handleFormKey(msg)
	}
	if m.confirmDelete >= 0 {
		return m.handleConfirmKey(msg)
	}

	key := msg.Key()
	switch msg.String() {
	case "q", "ctrl+c":
		m.outcome = OutcomeCancel
		return m, tea.Quit
	case "s":
		return m.save()
	case "h":
		return m.focusLeft(), nil
	case "l":
		return m.focusRight(), nil
	case "k":
		m = m.moveUp()
		return m, m.ensureHostLoaded()
	case "j":
		m = m.moveDown()
		return m, m.ensureHostLoaded()
	case " ":
		return m.toggleSelection(), nil
	case "m":
		return m.toggleBookmark(), nil
	case "a":
		form := newHostForm(m.formWidth(), -1, config.Host{})
		m.form = &form
		return m, nil
	case "e":
		return m.openEditHost()
	case "d":
		return m.openConfirmDelete()
	}

	switch key.Code {
	case tea.KeyEscape:
		m.outcome = OutcomeCancel
		return m, tea.Quit
	case tea.KeyTab:
		return m.cycleFocus(), nil
	case tea.KeyLeft:
		return m.focusLeft(), nil
	case tea.KeyRight:
		return m.focusRight(), nil
	case tea.KeyUp:
		m = m.moveUp()
		return m, m.ensureHostLoaded()
	case tea.KeyDown:
		m = m.moveDown()
		return m, m.ensureHostLoaded()
	case tea.KeyEnter:
		return m.descend()
	case tea.KeySpace:
		return m.toggleSelection(), nil
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.Key()
	switch key.Code {
	case tea.KeyEscape:
		m.form = nil
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		cmd := m.form.Next()
		return m, cmd
	case tea.KeyUp:
		cmd := m.form.Prev()
		return m, cmd
	case tea.KeyEnter:
		if !m.form.OnLastField() {
			cmd := m.form.Next()
			return m, cmd
		}
		return m.submitHostForm()
	}
	cmd := m.form.Update(msg)
	return m, cmd
}

func (m Model) submitHostForm() (tea.Model, tea.Cmd) {
	host, ok := m.form.Host()
	if !ok {
		m.status = "Host needs a name and at least one target."
		return m, nil
	}

	if m.form.editIndex >= 0 {
		m.cfg.Hosts[m.form.editIndex] = host
	} else {
		m.cfg.Hosts = append(m.cfg.Hosts, host)
	}
	m.form = nil
	m.hosts = m.cfg.AllHosts()
	delete(m.data, host.Name)
	m.status = fmt.Sprintf("Host %s saved.", host.Name)
	return m, m.ensureHostLoaded()
}

func (m Model) handleConfirmKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y":
		idx := m.confirmDelete
		name := m.cfg.Hosts[idx].Name
		m.cfg.Hosts = append(m.cfg.Hosts[:idx], m.cfg.Hosts[idx+1:]...)
		m.hosts = m.cfg.AllHosts()
		for key := range m.selection {
			if key.Host == name {
				delete(m.selection, key)
				delete(m.bookmarks, key)
			}
		}
		if m.hostIndex >= len(m.hosts) && m.hostIndex > 0 {
			m.hostIndex--
		}
		m.confirmDelete = -1
		m.status = fmt.Sprintf("Host %s removed.", name)
		return m, nil
	case "n":
		m.confirmDelete = -1
		return m, nil
	}
	if msg.Key().Code == tea.KeyEscape {
		m.confirmDelete = -1
	}
	return m, nil
}

// hostsIndexOf maps the current host cursor to an index in cfg.Hosts,
// accounting for the local pseudo-host at the top of the list.
func (m Model) hostsIndexOf(cursor int) (int, bool) {
	offset := 0
	if m.cfg.Local.Enabled {
		offset = 1
	}
	idx := cursor - offset
	if idx < 0 || idx >= len(m.cfg.Hosts) {
		return 0, false
	}
	return idx, true
}

func (m Model) openEditHost() (tea.Model, tea.Cmd) {
	idx, ok := m.hostsIndexOf(m.hostIndex)
	if !ok {
		m.status = "The local host is not editable."
		return m, nil
	}
	form := newHostForm(m.formWidth(), idx, m.cfg.Hosts[idx])
	m.form = &form
	return m, nil
}

func (m Model) openConfirmDelete() (tea.Model, tea.Cmd) {
	idx, ok := m.hostsIndexOf(m.hostIndex)
	if !ok {
		m.status = "The local host cannot be removed."
		return m, nil
	}
	m.confirmDelete = idx
	return m, nil
}

func (m Model) formWidth() int {
	if m.width > 0 {
		return min(m.width-4, 70)
	}
	return 70
}

func (m Model) save() (tea.Model, tea.Cmd) {
	if len(m.selection) == 0 {
		m.status = "Select at least one pane."
		return m, nil
	}
	if len(m.selection) > config.MaxTrackedPanes {
		m.status = fmt.Sprintf("Limit is %d panes.", config.MaxTrackedPanes)
		return m, nil
	}

	m.tracked = m.collect(m.selection)
	m.marks = m.collect(m.bookmarks)
	m.outcome = OutcomeSave
	return m, tea.Quit
}

// collect materializes a key set into tracked panes in a stable order.
func (m Model) collect(set map[fleet.Key]bool) []config.TrackedPane {
	keys := make([]fleet.Key, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Host != b.Host {
			return a.Host < b.Host
		}
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		if a.Window != b.Window {
			return a.Window < b.Window
		}
		return a.PaneID < b.PaneID
	})

	panes := make([]config.TrackedPane, 0, len(keys))
	for _, key := range keys {
		panes = append(panes, config.TrackedPane{
			Host:    key.Host,
			Session: key.Session,
			Window:  key.Window,
			PaneID:  key.PaneID,
			Label:   m.labels[key],
		})
	}
	return panes
}

func (m Model) toggleSelection() Model {
	key, ok := m.currentPaneKey()
	if !ok {
		return m
	}
	if m.selection[key] {
		delete(m.selection, key)
		return m
	}
	if len(m.selection) >= config.MaxTrackedPanes {
		m.status = fmt.Sprintf("Limit is %d panes.", config.MaxTrackedPanes)
		return m
	}
	m.selection[key] = true
	return m
}

func (m Model) toggleBookmark() Model {
	key, ok := m.currentPaneKey()
	if !ok {
		return m
	}
	if m.bookmarks[key] {
		delete(m.bookmarks, key)
	} else {
		m.bookmarks[key] = true
	}
	return m
}

func (m Model) currentPaneKey() (fleet.Key, bool) {
	if m.focus != focusPanes {
		return fleet.Key{}, false
	}
	panes := m.currentPanes()
	if m.paneIndex >= len(panes) {
		return fleet.Key{}, false
	}
	pane := panes[m.paneIndex]
	host := m.hosts[m.hostIndex]
	return fleet.Key{Host: host.Name, Session: pane.Session, Window: pane.Window, PaneID: pane.ID}, true
}

func (m Model) currentHostData() *hostData {
	if m.hostIndex >= len(m.hosts) {
		return nil
	}
	return m.data[m.hosts[m.hostIndex].Name]
}

func (m Model) currentWindow() (windowKey, bool) {
	data := m.currentHostData()
	if data == nil || m.windowIndex >= len(data.windows) {
		return windowKey{}, false
	}
	win := data.windows[m.windowIndex]
	return windowKey{session: win.Session, index: win.Index}, true
}

func (m Model) currentPanes() []tmux.Pane {
	data := m.currentHostData()
	wk, ok := m.currentWindow()
	if data == nil || !ok {
		return nil
	}
	return data.panes[wk]
}

func (m Model) descend() (Model, tea.Cmd) {
	switch m.focus {
	case focusHosts:
		m.focus = focusWindows
		m.windowIndex = 0
		return m, nil
	case focusWindows:
		if _, ok := m.currentWindow(); ok {
			m.focus = focusPanes
			m.paneIndex = 0
		}
		return m, nil
	}
	return m, nil
}

func (m Model) cycleFocus() Model {
	switch m.focus {
	case focusHosts:
		m.focus = focusWindows
	case focusWindows:
		m.focus = focusPanes
	case focusPanes:
		m.focus = focusHosts
	}
	return m
}

func (m Model) focusLeft() Model {
	if m.focus > focusHosts {
		m.focus--
	}
	return m
}

func (m Model) focusRight() Model {
	if m.focus < focusPanes {
		m.focus++
	}
	return m
}

func (m Model) moveUp() Model {
	switch m.focus {
	case focusHosts:
		if m.hostIndex > 0 {
			m.hostIndex--
			m.windowIndex, m.paneIndex = 0, 0
		}
	case focusWindows:
		if m.windowIndex > 0 {
			m.windowIndex--
			m.paneIndex = 0
		}
	case focusPanes:
		if m.paneIndex > 0 {
			m.paneIndex--
		}
	}
	return m
}

func (m Model) moveDown() Model {
	switch m.focus {
	case focusHosts:
		if m.hostIndex < len(m.hosts)-1 {
			m.hostIndex++
			m.windowIndex, m.paneIndex = 0, 0
		}
	case focusWindows:
		data := m.currentHostData()
		if data != nil && m.windowIndex < len(data.windows)-1 {
			m.windowIndex++
			m.paneIndex = 0
		}
	case focusPanes:
		if m.paneIndex < len(m.currentPanes())-1 {
			m.paneIndex++
		}
	}
	return m
}

// ensureHostLoaded starts discovery for the host under the cursor if it
// has not been loaded yet.
func (m Model) ensureHostLoaded() tea.Cmd {
	if m.hostIndex >= len(m.hosts) {
		return nil
	}
	host := m.hosts[m.hostIndex]
	if data, ok := m.data[host.Name]; ok && (data.loading || data.err == nil) {
		return nil
	}
	m.data[host.Name] = &hostData{loading: true}
	return discoverCmd(m.discoverer, host)
}
