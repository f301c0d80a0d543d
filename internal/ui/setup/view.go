package setup

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/agent462/fleetmux/internal/config"
	"github.com/agent462/fleetmux/internal/fleet"
)

// View renders the selection columns, or the active modal.
func (m Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Loading...")
	}

	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	return v
}

func (m Model) renderContent() string {
	if m.form != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			modalStyle.Render(m.form.View()))
	}
	if m.confirmDelete >= 0 {
		prompt := fmt.Sprintf("Remove host %s? (y/n)", m.cfg.Hosts[m.confirmDelete].Name)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			modalStyle.Render(prompt))
	}

	footerHeight := 2
	colHeight := m.height - footerHeight
	colWidth := m.width / 3

	hostsCol := m.renderColumn("Hosts", m.hostLines(), m.focus == focusHosts, colWidth, colHeight)
	windowsCol := m.renderColumn("Windows", m.windowLines(), m.focus == focusWindows, colWidth, colHeight)
	panesCol := m.renderColumn("Panes", m.paneLines(), m.focus == focusPanes, m.width-2*colWidth, colHeight)

	columns := lipgloss.JoinHorizontal(lipgloss.Top, hostsCol, windowsCol, panesCol)
	return lipgloss.JoinVertical(lipgloss.Left, columns, m.renderFooter())
}

func (m Model) renderColumn(title string, lines []string, focused bool, width, height int) string {
	style := columnStyle
	if focused {
		style = focusedColumnStyle
	}

	innerW := width - 2
	innerH := height - 2
	if innerW < 1 || innerH < 1 {
		return style.Width(width).Height(height).Render("")
	}

	body := []string{columnTitleStyle.Render(title)}
	for _, line := range lines {
		if len(body) >= innerH {
			break
		}
		body = append(body, ansi.Truncate(line, innerW, "…"))
	}
	return style.Width(width).Height(height).Render(strings.Join(body, "\n"))
}

func (m Model) hostLines() []string {
	lines := make([]string, 0, len(m.hosts))
	for i, host := range m.hosts {
		selected := 0
		for key := range m.selection {
			if key.Host == host.Name {
				selected++
			}
		}
		line := host.Name
		if selected > 0 {
			line = fmt.Sprintf("%s (%d)", host.Name, selected)
		}
		lines = append(lines, m.cursorLine(line, i == m.hostIndex && m.focus == focusHosts))
	}
	return lines
}

func (m Model) windowLines() []string {
	data := m.currentHostData()
	if data == nil {
		return []string{footerStyle.Render("select a host")}
	}
	if data.loading {
		return []string{"loading..."}
	}
	if data.err != nil {
		return []string{errStyle.Render("error: " + data.err.Error())}
	}
	if len(data.windows) == 0 {
		return []string{footerStyle.Render("no windows")}
	}

	lines := make([]string, 0, len(data.windows))
	for i, win := range data.windows {
		name := win.Name
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("%s:%d %s", win.Session, win.Index, name)
		lines = append(lines, m.cursorLine(line, i == m.windowIndex && m.focus == focusWindows))
	}
	return lines
}

func (m Model) paneLines() []string {
	panes := m.currentPanes()
	if len(panes) == 0 {
		return []string{footerStyle.Render("select a window")}
	}

	host := m.hosts[m.hostIndex]
	lines := make([]string, 0, len(panes))
	for i, pane := range panes {
		key := fleet.Key{Host: host.Name, Session: pane.Session, Window: pane.Window, PaneID: pane.ID}

		marker := "[ ]"
		if m.selection[key] {
			marker = selectedStyle.Render("[x]")
		}
		line := fmt.Sprintf("%s %s %s", marker, pane.ID, pane.Command)
		if pane.Title != "" {
			line += " — " + pane.Title
		}
		if m.bookmarks[key] {
			line += " " + bookmarkedStyle.Render("★")
		}
		lines = append(lines, m.cursorLine(line, i == m.paneIndex && m.focus == focusPanes))
	}
	return lines
}

func (m Model) cursorLine(line string, active bool) string {
	if active {
		return cursorStyle.Render("> ") + line
	}
	return "  " + line
}

func (m Model) renderFooter() string {
	help := "space: select · m: bookmark · enter: open · a/e/d: host add/edit/del · s: save · q: cancel"
	count := fmt.Sprintf("%d/%d selected", len(m.selection), config.MaxTrackedPanes)

	line := footerStyle.Render(help) + "  " + count
	if m.status != "" {
		line = statusStyle.Render(m.status) + "\n" + line
	} else {
		line = "\n" + line
	}
	return ansiTruncateLines(line, m.width)
}

func ansiTruncateLines(s string, width int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, width, "…")
	}
	return strings.Join(lines, "\n")
}
