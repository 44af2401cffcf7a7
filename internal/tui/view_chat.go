package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
)

// transcript renders the conversation so far for the scroll area.
func (a *App) transcript(width int) string {
	var lines []string
	for _, msg := range a.state.history {
		content := strings.Split(wrapText(msg.content, width-2), "\n")
		for j, line := range content {
			if msg.role == "user" {
				prefix := "> "
				if j > 0 {
					prefix = "  "
				}
				lines = append(lines, styleUser.Render(prefix+line))
				continue
			}
			lines = append(lines, styleAssistant.Render("  "+line))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderChat() string {
	var b strings.Builder
	conv := a.state.conv

	title := "Questions"
	if conv.Phase == pipeline.PhaseAskingConflict || conv.Phase == pipeline.PhaseMergingConflict {
		title = "Resolving conflicts"
	}
	b.WriteString(a.centered(styleTitle.Render(title)))
	b.WriteString("\n")
	if conv.DocumentTitle != "" {
		b.WriteString(a.centered(styleSubtitle.Render(truncate(conv.DocumentTitle, a.boxWidth()))))
	}
	b.WriteString("\n\n")

	b.WriteString(a.centered(a.state.scroll.View()))
	b.WriteString("\n")

	if a.state.busy {
		msg := "Thinking..."
		if p := a.state.progress; p != nil {
			msg = p.Message
		}
		b.WriteString(a.centered(a.state.spinner.View() + " " + styleSubtitle.Render(msg)))
		b.WriteString("\n")
		b.WriteString(a.centered(styleStatusBar.Render("[Esc] Cancel")))
		return b.String()
	}

	a.state.input.Placeholder = "Your answer..."
	inputBox := styleBox.
		Width(a.boxWidth()).
		BorderForeground(colorMuted).
		Render(a.state.input.View())
	b.WriteString(a.centered(inputBox))
	b.WriteString("\n")

	var statusParts []string
	if total := len(conv.Questions); total > 0 && conv.Phase.Asking() {
		statusParts = append(statusParts, fmt.Sprintf("Question %d/%d", conv.Index()+1, total))
	}
	if !a.state.scroll.AtBottom() {
		statusParts = append(statusParts, fmt.Sprintf("[%d%%]", int(a.state.scroll.ScrollPercent()*100)))
	}
	statusParts = append(statusParts, "[PgUp/PgDn] Scroll  /new  [Esc] Start over")
	b.WriteString(a.centered(styleStatusBar.Render(strings.Join(statusParts, "  "))))

	return b.String()
}

// wrapText wraps text to fit within maxWidth, preserving words and line breaks
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 60
	}

	var result strings.Builder
	for i, para := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		lineLen := 0
		for j, word := range strings.Fields(para) {
			w := lipgloss.Width(word)
			if j > 0 {
				if lineLen+1+w > maxWidth {
					result.WriteString("\n")
					lineLen = 0
				} else {
					result.WriteString(" ")
					lineLen++
				}
			}
			result.WriteString(word)
			lineLen += w
		}
	}
	return result.String()
}
