package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/prompts"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
)

// DefaultMaxQuestions caps one round of questions.
const DefaultMaxQuestions = 15

// draft is a raw question for one unresolved leaf.
type draft struct {
	ID    int           `json:"id"`
	Text  string        `json:"text"`
	Field fieldView     `json:"field"`
	path  template.Path
}

type refined struct {
	Text   string `json:"text"`
	Covers []int  `json:"covers"`
}

type refineReply struct {
	Questions []refined `json:"questions"`
}

// uploadRequest matches questions that ask the user to hand over something the
// text channel cannot carry. A question that only mentions an image, like
// "objects per image", is not a request.
var uploadRequest = regexp.MustCompile(`(?i)\b(upload|attach)(s|ed|ing|ments?)?\b|\b(send|share|provide|submit)\b.*\b(images?|photos?|photographs?|pictures?|files?|screenshots?|drawings?)\b`)

// Synthesizer turns unresolved leaves into a short list of questions.
type Synthesizer struct {
	gen      llm.Generator
	attempts int
	max      int
	log      *zap.Logger
}

func NewSynthesizer(gen llm.Generator, attempts, maxQuestions int, log *zap.Logger) *Synthesizer {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{gen: gen, attempts: attempts, max: maxQuestions, log: log}
}

// Synthesize returns questions for the leaves of sources that hold the mode's
// sentinel, in source order. With nothing unresolved it returns nil without
// calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, mode Mode, sources ...template.Named) ([]Question, error) {
	drafts := draftQuestions(mode, sources)
	if len(drafts) == 0 {
		return nil, nil
	}

	payload, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return nil, err
	}
	req := llm.GenerateRequest{
		Task:   llm.TaskQuestions,
		System: prompts.Questions(mode == ModeConflict, s.max),
		User:   string(payload),
	}
	reply, err := llm.GenerateJSON[refineReply](ctx, s.gen, req, s.attempts, nil)
	if err != nil {
		return nil, fmt.Errorf("refining %s questions: %w", mode, err)
	}

	questions := s.enforce(drafts, reply.Questions)

	s.log.Info("synthesized questions",
		zap.Stringer("mode", mode),
		zap.Int("unresolved", len(drafts)),
		zap.Int("questions", len(questions)))
	return questions, nil
}

func draftQuestions(mode Mode, sources []template.Named) []draft {
	var drafts []draft
	for _, src := range sources {
		for _, ref := range template.Unresolved(src.Root, mode.Sentinel()) {
			drafts = append(drafts, draft{
				ID:    len(drafts),
				Text:  draftText(mode, ref),
				Field: fieldView{Path: ref.Path, Description: ref.Leaf.Description},
				path:  ref.Path,
			})
		}
	}
	return drafts
}

func draftText(mode Mode, ref template.LeafRef) string {
	name := ref.Path[len(ref.Path)-1]
	if len(ref.Path) > 1 {
		name = ref.Path[len(ref.Path)-2] + " " + name
	}
	if mode == ModeConflict {
		return fmt.Sprintf("We got different answers for %s. What is the correct value? (%s)", name, ref.Leaf.Description)
	}
	return fmt.Sprintf("What is the %s? (%s)", name, ref.Leaf.Description)
}

// enforce keeps refined questions that cover at least one draft and do not ask
// for uploads. Drafts no kept question covers are asked as written. The result
// is ordered by the first draft each question covers and capped at max.
func (s *Synthesizer) enforce(drafts []draft, in []refined) []Question {
	type ordered struct {
		first int
		q     Question
	}

	var kept []ordered
	covered := make([]bool, len(drafts))
	for _, r := range in {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if uploadRequest.MatchString(text) {
			s.log.Debug("dropping upload question", zap.String("question", text))
			continue
		}

		var covers []int
		for _, id := range r.Covers {
			if id < 0 || id >= len(drafts) || slices.Contains(covers, id) {
				continue
			}
			covers = append(covers, id)
		}
		if len(covers) == 0 {
			s.log.Debug("dropping question without known fields", zap.String("question", text))
			continue
		}
		slices.Sort(covers)

		fields := make([]template.Path, len(covers))
		for i, id := range covers {
			fields[i] = drafts[id].path
			covered[id] = true
		}
		kept = append(kept, ordered{first: covers[0], q: Question{ID: uuid.NewString(), Text: text, Fields: fields}})
	}

	var uncovered []int
	for id, ok := range covered {
		if ok {
			continue
		}
		uncovered = append(uncovered, id)
		d := drafts[id]
		kept = append(kept, ordered{first: id, q: Question{ID: uuid.NewString(), Text: d.Text, Fields: []template.Path{d.path}}})
	}
	if len(uncovered) > 0 {
		s.log.Warn("refinement left fields unasked, adding drafts", zap.Ints("drafts", uncovered))
	}

	slices.SortStableFunc(kept, func(a, b ordered) int { return a.first - b.first })
	if len(kept) > s.max {
		kept = kept[:s.max]
	}

	out := make([]Question, len(kept))
	for i, k := range kept {
		out[i] = k.q
	}
	return out
}
