package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// truncate shortens text to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

var (
	// Colors
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorSecondary = lipgloss.Color("#06B6D4")
	colorSuccess   = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")
	colorWhite     = lipgloss.Color("#F9FAFB")

	styleLogo = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleSubtitle = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleSpinner = lipgloss.NewStyle().
			Foreground(colorPrimary)

	styleAssistant = lipgloss.NewStyle().
			Foreground(colorWhite)

	styleUser = lipgloss.NewStyle().
			Foreground(colorSecondary)
)

func (a *App) boxWidth() int {
	return max(20, min(70, a.width-4))
}

func (a *App) centered(s string) string {
	return lipgloss.PlaceHorizontal(a.width, lipgloss.Center, s)
}

func (a *App) centerVertically(content string) string {
	lines := strings.Count(content, "\n") + 1
	padding := (a.height - lines) / 2
	if padding < 0 {
		padding = 0
	}
	return strings.Repeat("\n", padding) + content
}
