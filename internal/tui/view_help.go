package tui

import "strings"

func (a *App) renderHelp() string {
	var b strings.Builder

	b.WriteString(a.centered(styleTitle.Render("Help")))
	b.WriteString("\n\n")

	commands := []string{
		"  /help, /h      Show this help",
		"  /new, /n       Start over with a new document",
		"  /quit, /q      Quit",
		"",
		"  Type a PDF path or paste a problem description",
		"  to start. Then answer one question at a time.",
	}
	b.WriteString(a.centered(styleBox.Width(56).Render(strings.Join(commands, "\n"))))
	b.WriteString("\n\n")

	b.WriteString(a.centered(styleSubtitle.Render("Keyboard Shortcuts")))
	b.WriteString("\n\n")

	shortcuts := []string{
		"  Enter          Submit",
		"  PgUp/PgDn      Scroll the conversation",
		"  Esc            Cancel / Back",
		"  r              Retry a failed step",
		"  Ctrl+C         Quit",
	}
	b.WriteString(a.centered(styleBox.Width(56).Render(strings.Join(shortcuts, "\n"))))
	b.WriteString("\n\n")

	b.WriteString(a.centered(styleStatusBar.Render("[Esc] Back")))
	return a.centerVertically(b.String())
}
