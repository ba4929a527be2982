package tui

import "github.com/charmbracelet/lipgloss"

var (
	subtle = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#3A3A3A"}
	accent = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	danger = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}

	infoStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle)

	senderStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)
)
