package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/prompts"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
)

// Pair matches every question with its answer by ID. It refuses to guess: a
// missing, duplicate or unknown answer is an error.
func Pair(questions []Question, answers []Answer) ([]QAPair, error) {
	if len(questions) != len(answers) {
		return nil, fmt.Errorf("%w: %d questions, %d answers", ErrPairing, len(questions), len(answers))
	}

	byID := make(map[string]Answer, len(answers))
	for _, a := range answers {
		if _, dup := byID[a.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate answer for question %s", ErrPairing, a.QuestionID)
		}
		byID[a.QuestionID] = a
	}

	pairs := make([]QAPair, len(questions))
	for i, q := range questions {
		a, ok := byID[q.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no answer for question %s", ErrPairing, q.ID)
		}
		pairs[i] = QAPair{Question: q, Answer: a}
	}
	return pairs, nil
}

// Merger folds answers back into templates.
type Merger struct {
	gen      llm.Generator
	attempts int
	log      *zap.Logger
}

func NewMerger(gen llm.Generator, attempts int, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{gen: gen, attempts: attempts, log: log}
}

// Merge combines templates into one record and applies the answers to it.
// In conflict mode only CONFLICT fields can change.
func (m *Merger) Merge(ctx context.Context, mode Mode, questions []Question, answers []Answer, templates ...template.Named) (template.Node, error) {
	pairs, err := Pair(questions, answers)
	if err != nil {
		return nil, err
	}

	merged, err := template.MergeNamed(templates...)
	if err != nil {
		return nil, fmt.Errorf("combining templates: %w", err)
	}
	if len(pairs) == 0 {
		return merged, nil
	}

	targets := template.Leaves(merged)
	if mode == ModeConflict {
		targets = template.Unresolved(merged, template.Conflict)
	}
	if len(targets) == 0 {
		return merged, nil
	}

	views := make([]fieldView, len(targets))
	for i, ref := range targets {
		views[i] = fieldView{Path: ref.Path, Description: ref.Leaf.Description, Answer: ref.Leaf.Answer}
	}
	fields, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(pairs))
	for i, p := range pairs {
		lines[i] = p.line()
	}

	req := llm.GenerateRequest{
		Task:   llm.TaskMerge,
		System: prompts.Merge(mode == ModeConflict),
		User:   prompts.MergeUser(string(fields), lines),
	}
	reply, err := llm.GenerateJSON[assignReply](ctx, m.gen, req, m.attempts, nil)
	if err != nil {
		if errors.Is(err, llm.ErrMalformedOutput) {
			return nil, fmt.Errorf("%w: merged record: %w", ErrMalformedTemplate, err)
		}
		return nil, fmt.Errorf("merging answers: %w", err)
	}

	candidates := make(map[string][]string)
	collect(candidates, merged, reply.Answers, m.log)

	changed := 0
	for _, ref := range targets {
		values, ok := candidates[ref.Path.Key()]
		if !ok {
			continue
		}
		next := apply(mode, ref.Leaf.Answer, values)
		if next != ref.Leaf.Answer {
			m.log.Debug("field updated",
				zap.Stringer("path", ref.Path),
				zap.String("from", ref.Leaf.Answer),
				zap.String("to", next))
			ref.Leaf.Answer = next
			changed++
		}
	}

	m.log.Info("merged answers",
		zap.Stringer("mode", mode),
		zap.Int("pairs", len(pairs)),
		zap.Int("changed", changed),
		zap.Bool("conflict", template.HasConflict(merged)))
	return merged, nil
}

// apply decides a leaf's answer from its current value and the values the
// answers gave for it. TBD values never count, so nothing is reset to TBD.
func apply(mode Mode, current string, values []string) string {
	var found []string
	for _, v := range template.Distinct(values) {
		if !template.IsConflict(v) {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		return current
	}

	switch {
	case template.IsConflict(current):
		if mode == ModeConflict && len(found) == 1 {
			return found[0]
		}
		return template.Conflict
	case mode == ModeConflict:
		return current
	case template.IsTBD(current):
		return template.ResolveCandidates(found)
	}

	for _, v := range found {
		if !template.SameValue(v, current) {
			return template.Conflict
		}
	}
	return current
}
