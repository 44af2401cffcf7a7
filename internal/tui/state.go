package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
)

type state struct {
	// Conversation
	conv     pipeline.State
	document *document.Document
	tokens   int

	// Processing
	busy     bool
	cancel   context.CancelFunc
	progress *pipeline.Progress
	err      error

	// Transcript
	history []message
	asked   string
	scroll  viewport.Model

	// Input
	input   textinput.Model
	spinner spinner.Model
}

type message struct {
	role    string
	content string
}

func newState() *state {
	input := textinput.New()
	input.Placeholder = "Type a PDF path, or paste a problem description..."
	input.CharLimit = 4000
	input.Width = 60
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleSpinner

	return &state{
		input:   input,
		spinner: sp,
		scroll:  viewport.New(70, 10),
	}
}

func (s *state) say(role, content string) {
	s.history = append(s.history, message{role: role, content: content})
}

// reset starts over with conv, keeping nothing from the previous document.
func (s *state) reset(conv pipeline.State) {
	s.conv = conv
	s.document = nil
	s.tokens = 0
	s.progress = nil
	s.err = nil
	s.history = nil
	s.asked = ""
	s.input.Reset()
	s.scroll.GotoTop()
}
