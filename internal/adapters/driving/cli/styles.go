package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette for terminal output. lipgloss drops colour when stdout is not a TTY.
var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorAccent  = lipgloss.Color("#06B6D4")
	colorMuted   = lipgloss.Color("#6C7086")
	colorSuccess = lipgloss.Color("#A6E3A1")
	colorWarning = lipgloss.Color("#F9E2AF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	scoreStyle   = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	snippetStyle = lipgloss.NewStyle().PaddingLeft(6)
)

func heading(s string) string {
	return titleStyle.Render(s)
}

func score(v float64) string {
	return scoreStyle.Render(fmt.Sprintf("%.3f", v))
}
