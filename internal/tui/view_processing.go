package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type stage struct {
	step  string
	label string
}

var stages = []stage{
	{"classify", "Classifying"},
	{"prune", "Selecting fields"},
	{"fill", "Filling templates"},
	{"questions", "Preparing questions"},
	{"merge", "Merging"},
	{"summary", "Summarizing"},
	{"export", "Exporting"},
}

func stageIndex(step string) int {
	for i, s := range stages {
		if s.step == step {
			return i
		}
	}
	return 0
}

func (a *App) renderProcessing() string {
	var b strings.Builder

	b.WriteString(a.centered(styleTitle.Render("Processing")))
	b.WriteString("\n\n")

	if info := a.renderDocumentInfo(); info != "" {
		b.WriteString(a.centered(info))
		b.WriteString("\n\n")
	}

	p := a.state.progress
	current := 0
	if p != nil {
		current = stageIndex(p.Step)
	}

	var stageLines []string
	for i, s := range stages {
		var icon string
		var style lipgloss.Style

		switch {
		case p == nil:
			icon = "[ ]"
			style = lipgloss.NewStyle().Foreground(colorMuted)
		case i < current:
			icon = "[x]"
			style = lipgloss.NewStyle().Foreground(colorSuccess)
		case i == current:
			icon = "[>]"
			style = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
		default:
			icon = "[ ]"
			style = lipgloss.NewStyle().Foreground(colorMuted)
		}

		var progressBar string
		if p != nil && i == current && p.TotalItems > 0 {
			pct := float64(p.ItemIndex) / float64(p.TotalItems)
			filled := int(pct * 20)
			progressBar = "  " +
				lipgloss.NewStyle().Foreground(colorSecondary).Render(strings.Repeat("=", filled)) +
				lipgloss.NewStyle().Foreground(colorMuted).Render(strings.Repeat("-", 20-filled)) +
				fmt.Sprintf("  %d/%d", p.ItemIndex, p.TotalItems)
		}

		stageLines = append(stageLines, style.Render(fmt.Sprintf("  %s  %-20s", icon, s.label))+progressBar)
	}

	stagesBox := styleBox.
		Width(a.boxWidth()).
		Render(strings.Join(stageLines, "\n"))
	b.WriteString(a.centered(stagesBox))
	b.WriteString("\n\n")

	msg := "Reading document..."
	if p != nil {
		msg = p.Message
	}
	b.WriteString(a.centered(a.state.spinner.View() + " " + styleSubtitle.Render(truncate(msg, a.boxWidth()))))
	b.WriteString("\n\n")
	b.WriteString(a.centered(styleStatusBar.Render("[Esc] Cancel")))

	return a.centerVertically(b.String())
}
