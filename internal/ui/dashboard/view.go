package dashboard

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/agent462/fleetmux/internal/fleet"
	"github.com/agent462/fleetmux/internal/palette"
)

// View renders the full dashboard.
func (m Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Loading...")
	}

	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m Model) renderContent() string {
	if m.showHelp {
		return renderHelpOverlay(m.width, m.height)
	}

	if len(m.panes) == 0 {
		empty := tileStyle.Width(m.width).Height(m.height).Render(
			"No tracked panes.\n\nPress s to open setup, q to quit.")
		return empty
	}

	mainHeight := m.height
	var strip string
	if len(m.bookmarks) > 0 {
		strip = m.renderBookmarks()
		mainHeight--
	}

	var grid string
	if m.zoomed {
		grid = m.renderTile(m.panes[m.focused], m.width, mainHeight, true)
	} else {
		grid = m.renderGrid(m.width, mainHeight)
	}

	if strip == "" {
		return grid
	}
	return lipgloss.JoinVertical(lipgloss.Left, grid, strip)
}

func (m Model) renderGrid(width, height int) string {
	rows, cols := gridDimensions(len(m.panes))
	tileW := width / cols
	tileH := height / rows

	var rendered []string
	for r := 0; r < rows; r++ {
		var tiles []string
		for c := 0; c < cols; c++ {
			idx := r*cols + c
			if idx >= len(m.panes) {
				break
			}
			tiles = append(tiles, m.renderTile(m.panes[idx], tileW, tileH, idx == m.focused))
		}
		rendered = append(rendered, lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rendered...)
}

// renderTile draws one pane tile at the given total size, border included.
func (m Model) renderTile(pane fleet.PaneView, width, height int, focused bool) string {
	hostColor := m.hostColor(pane.Key.Host)

	var style lipgloss.Style
	switch {
	case pane.Status == fleet.StatusDown:
		style = downTileStyle
	case focused:
		style = focusedTileStyle.BorderForeground(hostColor.Focus().Term())
	default:
		style = tileStyle.BorderForeground(hostColor.Term())
	}
	if pane.Status == fleet.StatusStale {
		style = style.Faint(true)
	}

	innerW := width - 2
	innerH := height - 2
	if innerW < 1 || innerH < 1 {
		return style.Width(width).Height(height).Render("")
	}

	lines := make([]string, 0, innerH)
	lines = append(lines, m.renderTitle(pane, hostColor, focused, innerW))
	lines = append(lines, m.renderBody(pane, innerW, innerH-1)...)

	return style.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) renderTitle(pane fleet.PaneView, hostColor palette.Color, focused bool, width int) string {
	var b strings.Builder
	if focused {
		b.WriteString("▶ ")
	}
	b.WriteString(titleStyle.Foreground(hostColor.Focus().Term()).Render(pane.Key.Host))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%s:%d", pane.Key.Session, pane.Key.Window))

	if label := tileLabel(pane); label != "" {
		b.WriteString(" — ")
		b.WriteString(titleStyle.Render(label))
	}
	if m.compact && pane.Status != fleet.StatusOK {
		b.WriteString(" ")
		b.WriteString(statusLabelStyle.Render("[" + pane.Status.String() + "]"))
	}
	b.WriteString(" ")
	b.WriteString(paneIDStyle.Render("(" + formatPaneID(pane.Key.PaneID) + ")"))

	return ansi.Truncate(b.String(), width, "…")
}

// renderBody shows the tail of the capture that fits, preceded by a
// status line when the pane is not healthy.
func (m Model) renderBody(pane fleet.PaneView, width, height int) []string {
	var lines []string
	if pane.Status != fleet.StatusOK && !m.compact {
		lines = append(lines, statusLabelStyle.Render("Status: "+pane.Status.String()))
	}
	if pane.Status == fleet.StatusDown && pane.Err != nil {
		lines = append(lines, errorStyle.Render(ansi.Truncate("Error: "+pane.Err.Error(), width, "…")))
	}

	body := pane.Capture.Lines
	if len(body) == 0 && pane.LastUpdate.IsZero() {
		lines = append(lines, "Waiting for data...")
	}

	remaining := height - len(lines)
	if remaining < 0 {
		remaining = 0
	}
	if len(body) > remaining {
		body = body[len(body)-remaining:]
	}
	for _, line := range body {
		styled := ansi.Truncate(line, width, "")
		if pane.Status == fleet.StatusStale {
			styled = staleContentStyle.Render(styled)
		}
		lines = append(lines, styled)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return lines
}

// tileLabel prefers the user label, then the pane title, then the
// current command.
func tileLabel(pane fleet.PaneView) string {
	if pane.Label != "" {
		return pane.Label
	}
	if pane.Capture.Title != "" {
		return pane.Capture.Title
	}
	return pane.Capture.Command
}

func formatPaneID(paneID string) string {
	return "pane " + strings.TrimPrefix(paneID, "%")
}

// renderBookmarks draws the quick-jump strip: number keys 1-9 mapped to
// bookmarked panes.
func (m Model) renderBookmarks() string {
	var parts []string
	for i, key := range m.bookmarks {
		if i >= 9 {
			break
		}
		entry := fmt.Sprintf("%d:%s %s:%d", i+1, key.Host, key.Session, key.Window)
		style := bookmarkStyle
		if m.focused < len(m.panes) && m.panes[m.focused].Key == key {
			style = bookmarkActiveStyle
		}
		parts = append(parts, style.Render(entry))
	}
	return ansi.Truncate(strings.Join(parts, "  "), m.width, "…")
}

var helpEntries = [][2]string{
	{"enter", "take control of the focused pane"},
	{"tab", "focus next pane"},
	{"h/j/k/l, arrows", "move focus"},
	{"1-9", "jump to bookmark"},
	{"z", "zoom the focused pane"},
	{"s", "open setup"},
	{"?", "toggle this help"},
	{"q", "quit"},
}

func renderHelpOverlay(width, height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("fleetmux keys"))
	b.WriteString("\n\n")
	for _, entry := range helpEntries {
		b.WriteString(fmt.Sprintf("%s  %s\n",
			helpKeyStyle.Render(fmt.Sprintf("%-16s", entry[0])),
			helpDescStyle.Render(entry[1])))
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, b.String())
}
