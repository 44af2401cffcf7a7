package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/classify"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
)

// Phase is where a conversation stands.
type Phase int

const (
	PhaseAwaitingDocument Phase = iota
	PhasePopulating
	PhaseAskingInitial
	PhaseMerging
	PhaseAskingConflict
	PhaseMergingConflict
	PhaseFinalizing
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingDocument:
		return "awaiting_document"
	case PhasePopulating:
		return "populating"
	case PhaseAskingInitial:
		return "asking_initial"
	case PhaseMerging:
		return "merging"
	case PhaseAskingConflict:
		return "asking_conflict"
	case PhaseMergingConflict:
		return "merging_conflict"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Asking reports whether the conversation is waiting for an answer.
func (p Phase) Asking() bool {
	return p == PhaseAskingInitial || p == PhaseAskingConflict
}

// Mode tells the synthesizer and merger which sentinel they work on.
type Mode int

const (
	ModeInitial Mode = iota
	ModeConflict
)

func (m Mode) String() string {
	if m == ModeConflict {
		return "conflict"
	}
	return "initial"
}

// Sentinel is the answer value the mode resolves.
func (m Mode) Sentinel() string {
	if m == ModeConflict {
		return template.Conflict
	}
	return template.TBD
}

// Mode returns the mode of an asking or merging phase.
func (p Phase) Mode() Mode {
	if p == PhaseAskingConflict || p == PhaseMergingConflict {
		return ModeConflict
	}
	return ModeInitial
}

// Question is one clarifying question and the fields it is meant to fill.
type Question struct {
	ID     string          `json:"id"`
	Text   string          `json:"text"`
	Fields []template.Path `json:"fields"`
}

// Answer is the user's reply to the question with QuestionID.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// QAPair is a question with its answer.
type QAPair struct {
	Question Question
	Answer   Answer
}

func (p QAPair) String() string {
	return fmt.Sprintf("Question: %s Answer: %s", p.Question.Text, p.Answer.Text)
}

// line renders the pair for the merge prompt, with the fields it targets.
func (p QAPair) line() string {
	if len(p.Question.Fields) == 0 {
		return p.String()
	}
	fields := make([]string, len(p.Question.Fields))
	for i, f := range p.Question.Fields {
		fields[i] = f.String()
	}
	return p.String() + " [fields: " + strings.Join(fields, "; ") + "]"
}

// State is one conversation at one turn. Driver operations take a State and
// return a new one; the input is never modified, so a caller can keep the
// previous turn to retry from.
type State struct {
	ID             string
	Phase          Phase
	Round          int
	DocumentKey    string
	DocumentTitle  string
	Source         string
	Classification classify.Classification
	Templates      []template.Named
	Merged         template.Node
	Questions      []Question
	Answers        []Answer
	Summary        string
	Exported       int
	LastError      string
	// Fatal marks a LastError that retrying cannot clear.
	Fatal bool
}

// NewState starts a conversation waiting for its document.
func NewState() State {
	return State{ID: uuid.NewString(), Phase: PhaseAwaitingDocument}
}

// Index is the position of the question being asked.
func (s State) Index() int {
	return len(s.Answers)
}

// Current returns the question waiting for an answer.
func (s State) Current() (Question, bool) {
	if !s.Phase.Asking() || s.Index() >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.Index()], true
}

// Pairs returns the answered questions so far.
func (s State) Pairs() []QAPair {
	out := make([]QAPair, 0, len(s.Answers))
	for i, a := range s.Answers {
		out = append(out, QAPair{Question: s.Questions[i], Answer: a})
	}
	return out
}

// Done reports whether the conversation reached its end.
func (s State) Done() bool {
	return s.Phase == PhaseTerminal
}

func (s State) clone() State {
	s.Templates = slices.Clone(s.Templates)
	s.Questions = slices.Clone(s.Questions)
	s.Answers = slices.Clone(s.Answers)
	return s
}

func (s State) withAnswer(a Answer) State {
	ns := s.clone()
	ns.Answers = append(ns.Answers, a)
	return ns
}
