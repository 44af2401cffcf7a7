// Package tui is the terminal chat for an intake conversation: one document
// in, one clarifying question per turn, a summary out.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"go.uber.org/zap"
)

// Engine drives the conversation. *pipeline.Driver implements it.
type Engine interface {
	Start() pipeline.State
	Ingest(ctx context.Context, s pipeline.State, doc *document.Document) (pipeline.State, error)
	Answer(ctx context.Context, s pipeline.State, text string) (pipeline.State, error)
	Resume(ctx context.Context, s pipeline.State) (pipeline.State, error)
}

// Extractor reads a document from disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (*document.Document, error)
}

type progressSource interface {
	SetProgressCallback(fn func(pipeline.Progress))
}

type view int

const (
	viewWelcome view = iota
	viewProcessing
	viewChat
	viewError
	viewResult
	viewHelp
)

type App struct {
	width    int
	height   int
	view     view
	back     view
	state    *state
	quitting bool

	engine    Engine
	extractor Extractor
	tokens    *llm.TokenCounter
	model     string
	log       *zap.Logger
}

func NewApp(engine Engine, extractor Extractor, model string, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	s := newState()
	s.conv = engine.Start()
	s.scroll.KeyMap = scrollKeyMap()

	return &App{
		view:      viewWelcome,
		state:     s,
		engine:    engine,
		extractor: extractor,
		tokens:    llm.NewTokenCounter(),
		model:     model,
		log:       log,
	}
}

// SetProgram routes engine progress into the running program.
func (a *App) SetProgram(p *tea.Program) {
	if src, ok := a.engine.(progressSource); ok {
		src.SetProgressCallback(func(pr pipeline.Progress) {
			p.Send(progressMsg(pr))
		})
	}
}

type (
	progressMsg  pipeline.Progress
	extractedMsg struct {
		doc *document.Document
		err error
	}
	stepMsg struct {
		conv pipeline.State
		err  error
	}
)

func (a *App) Init() tea.Cmd {
	return tea.Batch(tea.WindowSize(), textinput.Blink)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.state.input.Width = a.boxWidth() - 4
		a.state.scroll.Width = a.boxWidth()
		a.state.scroll.Height = max(5, a.height-8)
		a.refresh()

	case spinner.TickMsg:
		if !a.state.busy {
			return a, nil
		}
		var cmd tea.Cmd
		a.state.spinner, cmd = a.state.spinner.Update(msg)
		return a, cmd

	case progressMsg:
		p := pipeline.Progress(msg)
		if p.Message != "" {
			a.state.progress = &p
		}
		return a, nil

	case extractedMsg:
		return a, a.handleExtracted(msg)

	case stepMsg:
		return a, a.handleStep(msg)
	}

	if a.acceptsInput() {
		var cmd tea.Cmd
		a.state.input, cmd = a.state.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) acceptsInput() bool {
	return !a.state.busy && (a.view == viewWelcome || a.view == viewChat)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		a.stop()
		a.quitting = true
		return tea.Quit, true

	case key.Matches(msg, keys.Cancel):
		switch {
		case a.state.busy:
			a.stop()
		case a.view == viewHelp:
			a.view = a.back
		case a.view == viewError && a.state.conv.Phase.Asking():
			a.view = viewChat
		case a.view == viewWelcome || a.view == viewResult:
			a.quitting = true
			return tea.Quit, true
		default:
			a.startOver()
		}
		return nil, true

	case key.Matches(msg, keys.PageUp, keys.PageDown):
		var cmd tea.Cmd
		a.state.scroll, cmd = a.state.scroll.Update(msg)
		return cmd, true

	case key.Matches(msg, keys.Enter):
		if a.acceptsInput() {
			return a.submit(), true
		}
		return nil, true
	}

	if a.view == viewError || a.view == viewResult {
		switch {
		case key.Matches(msg, keys.Retry) && a.view == viewError:
			return a.retry(), true
		case key.Matches(msg, keys.New):
			a.startOver()
			return nil, true
		}
		return nil, true
	}
	return nil, false
}

func (a *App) submit() tea.Cmd {
	input := strings.TrimSpace(a.state.input.Value())
	if input == "" {
		return nil
	}

	if strings.HasPrefix(input, "/") {
		switch strings.ToLower(input) {
		case "/help", "/h":
			a.state.input.Reset()
			a.back = a.view
			a.view = viewHelp
			return nil
		case "/new", "/n":
			a.startOver()
			return nil
		case "/quit", "/q":
			a.quitting = true
			return tea.Quit
		}
	}

	a.state.input.Reset()
	if a.view == viewWelcome {
		a.view = viewProcessing
		return a.run(func(ctx context.Context) tea.Msg {
			doc, err := a.load(ctx, input)
			return extractedMsg{doc: doc, err: err}
		})
	}

	a.state.say("user", input)
	a.refresh()
	conv := a.state.conv
	return a.run(func(ctx context.Context) tea.Msg {
		ns, err := a.engine.Answer(ctx, conv, input)
		return stepMsg{conv: ns, err: err}
	})
}

// load treats input as a file path when it names one, and as a pasted
// problem description otherwise.
func (a *App) load(ctx context.Context, input string) (*document.Document, error) {
	path := strings.Trim(input, `"'`)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return a.extractor.Extract(ctx, path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		if !strings.ContainsAny(path, " \t") {
			return nil, fmt.Errorf("%w: no such file: %s", document.ErrExtraction, path)
		}
	}
	return document.FromText("Problem description", input), nil
}

func (a *App) handleExtracted(msg extractedMsg) tea.Cmd {
	a.finish()
	if msg.err != nil {
		return a.fail(msg.err)
	}

	a.state.document = msg.doc
	a.state.tokens = a.tokens.Count(msg.doc.Content)
	a.state.say("user", "Uploaded "+msg.doc.Metadata.Title)
	a.view = viewProcessing
	return a.ingest()
}

func (a *App) ingest() tea.Cmd {
	conv, doc := a.state.conv, a.state.document
	return a.run(func(ctx context.Context) tea.Msg {
		ns, err := a.engine.Ingest(ctx, conv, doc)
		return stepMsg{conv: ns, err: err}
	})
}

func (a *App) retry() tea.Cmd {
	a.state.err = nil
	switch a.state.conv.Phase {
	case pipeline.PhaseAwaitingDocument:
		if a.state.document == nil {
			a.view = viewWelcome
			return nil
		}
		a.view = viewProcessing
		return a.ingest()
	case pipeline.PhaseMerging, pipeline.PhaseMergingConflict, pipeline.PhaseFinalizing:
		a.view = viewChat
		conv := a.state.conv
		return a.run(func(ctx context.Context) tea.Msg {
			ns, err := a.engine.Resume(ctx, conv)
			return stepMsg{conv: ns, err: err}
		})
	case pipeline.PhaseAskingInitial, pipeline.PhaseAskingConflict:
		a.view = viewChat
		return nil
	}
	a.startOver()
	return nil
}

func (a *App) handleStep(msg stepMsg) tea.Cmd {
	a.finish()
	prev := a.state.conv
	a.state.conv = msg.conv
	if msg.err != nil {
		return a.fail(msg.err)
	}

	conv := msg.conv
	switch {
	case conv.Phase.Asking():
		if conv.Phase == pipeline.PhaseAskingConflict && prev.Phase != pipeline.PhaseAskingConflict {
			a.state.say("assistant", "Some answers disagree with the document. A few more questions to settle them.")
		}
		if q, ok := conv.Current(); ok && q.ID != a.state.asked {
			a.state.asked = q.ID
			a.state.say("assistant", q.Text)
		}
		a.view = viewChat
	case conv.Done():
		a.view = viewResult
	default:
		return a.fail(fmt.Errorf("conversation stopped while %s", conv.Phase))
	}
	a.refresh()
	return textinput.Blink
}

func (a *App) fail(err error) tea.Cmd {
	if errors.Is(err, context.Canceled) {
		err = errors.New("cancelled")
	}
	a.log.Warn("step failed", zap.String("conversation", a.state.conv.ID), zap.Error(err))
	a.state.err = err
	a.view = viewError
	return nil
}

// run executes fn off the update loop with a cancellable context.
func (a *App) run(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.state.busy = true
	a.state.cancel = cancel
	a.state.progress = nil
	return tea.Batch(a.state.spinner.Tick, func() tea.Msg {
		defer cancel()
		return fn(ctx)
	})
}

func (a *App) finish() {
	a.state.busy = false
	a.state.cancel = nil
}

func (a *App) stop() {
	if a.state.cancel != nil {
		a.state.cancel()
	}
}

func (a *App) startOver() {
	a.stop()
	a.finish()
	a.state.reset(a.engine.Start())
	a.view = viewWelcome
}

// refresh re-renders the scrollable area for the current view.
func (a *App) refresh() {
	width := a.state.scroll.Width - 2
	if a.view == viewResult {
		a.state.scroll.SetContent(a.resultContent(width))
		a.state.scroll.GotoTop()
		return
	}
	a.state.scroll.SetContent(a.transcript(width))
	a.state.scroll.GotoBottom()
}

func (a *App) View() string {
	if a.quitting {
		return ""
	}

	switch a.view {
	case viewProcessing:
		return a.renderProcessing()
	case viewChat:
		return a.renderChat()
	case viewError:
		return a.renderError()
	case viewResult:
		return a.renderResult()
	case viewHelp:
		return a.renderHelp()
	default:
		return a.renderWelcome()
	}
}

// scrollKeyMap leaves letter keys free for typing answers.
func scrollKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
	}
}
