package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
)

// resultContent is the executive summary shown in the scroll area.
func (a *App) resultContent(width int) string {
	summary := a.state.conv.Summary
	if summary == "" {
		summary = "No summary was written."
	}
	return wrapText(summary, width)
}

func (a *App) renderResult() string {
	var b strings.Builder
	conv := a.state.conv

	b.WriteString(a.centered(styleTitle.Render("Executive summary")))
	b.WriteString("\n")

	var info []string
	if conv.DocumentTitle != "" {
		info = append(info, truncate(conv.DocumentTitle, 40))
	}
	info = append(info, fmt.Sprintf("%d answers", len(conv.Answers)))
	info = append(info, fmt.Sprintf("%d fields exported", conv.Exported))
	b.WriteString(a.centered(styleSubtitle.Render(strings.Join(info, "  |  "))))
	b.WriteString("\n")

	if conv.Merged != nil && template.HasConflict(conv.Merged) {
		warn := lipgloss.NewStyle().
			Foreground(colorWarning).
			Render("Some fields are still in conflict and are listed as open items")
		b.WriteString(a.centered(warn))
	}
	b.WriteString("\n")

	resultBox := styleBox.
		Width(a.boxWidth()).
		BorderForeground(colorPrimary).
		Render(a.state.scroll.View())
	b.WriteString(a.centered(resultBox))
	b.WriteString("\n")

	b.WriteString(a.centered(styleStatusBar.Render("[PgUp/PgDn] Scroll  [n] New document  [Esc] Quit")))
	return b.String()
}
