package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderDocumentInfo is the box describing the loaded document.
func (a *App) renderDocumentInfo() string {
	doc := a.state.document
	if doc == nil {
		return ""
	}
	meta := doc.Metadata

	title := lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		Render(truncate(meta.Title, a.boxWidth()-4))

	var metaParts []string
	if meta.PageCount != nil {
		metaParts = append(metaParts, fmt.Sprintf("%d pages", *meta.PageCount))
	}
	metaParts = append(metaParts, strings.ToUpper(meta.SourceFormat))
	metaParts = append(metaParts, meta.FileSizeHuman())
	metaParts = append(metaParts, fmt.Sprintf("~%d words", meta.WordCount))
	if a.state.tokens > 0 {
		metaParts = append(metaParts, contextUsage(a.state.tokens, a.model))
	}
	lines := []string{title, styleSubtitle.Render(strings.Join(metaParts, "  |  "))}

	if n := len(meta.SkippedPages); n > 0 {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(colorWarning).
			Render(fmt.Sprintf("%d unreadable page(s) skipped", n)))
	}
	if cls := a.state.conv.Classification; !cls.Empty() {
		lines = append(lines, styleSubtitle.Render("Problem type: "+cls.String()))
	}

	return styleBox.
		Width(a.boxWidth()).
		BorderForeground(colorSuccess).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
