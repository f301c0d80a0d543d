package dashboard

import (
	"charm.land/lipgloss/v2"

	"github.com/agent462/fleetmux/internal/palette"
)

var (
	colorSubtle = lipgloss.Color("#626262")
	colorWhite  = lipgloss.Color("#FFFFFF")
	colorYellow = lipgloss.Color("#FDFF90")
)

var (
	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder())

	focusedTileStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				Bold(true)

	downTileStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(palette.DownColor).
			Faint(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	paneIDStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	staleContentStyle = lipgloss.NewStyle().
				Faint(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4672"))

	bookmarkStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	bookmarkActiveStyle = lipgloss.NewStyle().
				Foreground(colorWhite).
				Bold(true)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00E5FF")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)
)
