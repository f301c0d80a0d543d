package setup

import (
	"charm.land/lipgloss/v2"
)

var (
	colorCyan   = lipgloss.Color("#00E5FF")
	colorGreen  = lipgloss.Color("#04B575")
	colorYellow = lipgloss.Color("#FDFF90")
	colorSubtle = lipgloss.Color("#626262")
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle)

	focusedColumnStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorCyan)

	columnTitleStyle = lipgloss.NewStyle().
				Foreground(colorCyan).
				Bold(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	bookmarkedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4672"))

	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)

	formTitleStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(1, 2)
)
