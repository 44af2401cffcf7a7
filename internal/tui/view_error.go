package tui

import (
	"errors"
	"strings"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
)

func (a *App) renderError() string {
	var b strings.Builder

	b.WriteString(a.centered(styleTitle.Foreground(colorError).Render("Something went wrong")))
	b.WriteString("\n\n")

	errMsg := "Unknown error"
	if a.state.err != nil {
		errMsg = a.state.err.Error()
	}
	errBox := styleBox.
		Width(a.boxWidth()).
		BorderForeground(colorError).
		Render(wrapText(errMsg, a.boxWidth()-4))
	b.WriteString(a.centered(errBox))
	b.WriteString("\n\n")

	if suggestions := suggest(a.state.err); len(suggestions) > 0 {
		suggBox := styleBox.
			Width(a.boxWidth()).
			BorderForeground(colorMuted).
			Render("Suggestions:\n" + strings.Join(suggestions, "\n"))
		b.WriteString(a.centered(suggBox))
		b.WriteString("\n\n")
	}

	b.WriteString(a.centered(styleStatusBar.Render("[r] Retry  [n] New document  [Esc] Back")))
	return a.centerVertically(b.String())
}

func suggest(err error) []string {
	if err == nil {
		return nil
	}
	errLower := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, document.ErrTooLarge):
		return []string{"The file is over the 10 MB limit", "Try a smaller export of the document"}
	case errors.Is(err, document.ErrExtraction):
		return []string{"Check the file path is correct", "Scanned PDFs without a text layer cannot be read"}
	case errors.Is(err, template.ErrStructuralConflict), errors.Is(err, pipeline.ErrNotRetryable):
		return []string{"The two templates define the same field differently", "Fix the template files in your config, then start over with [n]"}
	case errors.Is(err, pipeline.ErrMalformedTemplate), errors.Is(err, llm.ErrMalformedOutput):
		return []string{"The model did not return valid JSON", "Press [r] to try again, or pick a stronger model with `intake setup`"}
	case strings.Contains(errLower, "api key") || strings.Contains(errLower, "401") || strings.Contains(errLower, "unauthorized"):
		return []string{"Check your API key with `intake setup`", "Or set INTAKE_API_KEY"}
	case strings.Contains(errLower, "rate limit") || strings.Contains(errLower, "429"):
		return []string{"You've hit the API rate limit", "Wait a moment and press [r]"}
	case strings.Contains(errLower, "ollama"):
		return []string{"Make sure Ollama is running: ollama serve"}
	case llm.IsTransient(err):
		return []string{"Check your internet connection", "Press [r] to retry from where it stopped"}
	}
	return nil
}
