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

// fieldView is how a leaf is shown to the model.
type fieldView struct {
	Path        []string `json:"path"`
	Description string   `json:"description"`
	Answer      string   `json:"answer,omitempty"`
}

// assignment is one field the model found values for.
type assignment struct {
	Path   []string `json:"path"`
	Values []string `json:"values"`
}

type assignReply struct {
	Answers []assignment `json:"answers"`
}

type pruneReply struct {
	Fields [][]string `json:"fields"`
}

// Populator fills a raw template from the source document.
type Populator struct {
	gen       llm.Generator
	attempts  int
	maxTokens int
	count     func(string) int
	log       *zap.Logger
	progress  func(Progress)
}

// NewPopulator returns a populator that asks gen up to attempts times per
// structured call and feeds the source in chunks of at most maxTokens.
func NewPopulator(gen llm.Generator, attempts, maxTokens int, log *zap.Logger) *Populator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Populator{
		gen:       gen,
		attempts:  attempts,
		maxTokens: maxTokens,
		count:     llm.NewTokenCounter().Count,
		log:       log,
	}
}

func (p *Populator) report(pr Progress) {
	if p.progress != nil {
		p.progress(pr)
	}
}

// Populate returns raw with every leaf answered from source. When prune is
// set, only the parts relevant to the classification are kept first.
//
// The model only reports the values it finds; the answers themselves are
// decided here: no value is TBD, one distinct value is that value, several
// are CONFLICT.
func (p *Populator) Populate(ctx context.Context, raw template.Named, classification, source string, prune bool) (template.Named, error) {
	root := raw.Root
	if prune {
		var err error
		root, err = p.prune(ctx, raw, classification, source)
		if err != nil {
			return template.Named{}, err
		}
	}

	filled, err := p.fill(ctx, raw.Name, root, source)
	if err != nil {
		return template.Named{}, err
	}
	return template.Named{Name: raw.Name, Root: filled}, nil
}

func (p *Populator) prune(ctx context.Context, raw template.Named, classification, source string) (template.Node, error) {
	p.report(Progress{Step: "prune", Message: "Selecting relevant " + raw.Name + " fields..."})

	req := llm.GenerateRequest{
		Task:   llm.TaskPrune,
		System: prompts.Prune,
		User:   prompts.PruneUser(template.String(raw.Root), classification, source),
	}
	reply, err := llm.GenerateJSON[pruneReply](ctx, p.gen, req, p.attempts, nil)
	if err != nil {
		return nil, templateErr(raw.Name, err)
	}

	paths := make([]template.Path, 0, len(reply.Fields))
	for _, f := range reply.Fields {
		path := template.Path(f)
		if _, ok := template.Lookup(raw.Root, path); !ok || len(path) == 0 {
			p.log.Warn("prune selected unknown path", zap.String("template", raw.Name), zap.Stringer("path", path))
			continue
		}
		paths = append(paths, path)
	}

	pruned := template.Select(raw.Root, paths)
	if pruned == nil || len(template.Leaves(pruned)) == 0 {
		p.log.Warn("prune selected nothing, keeping full template", zap.String("template", raw.Name))
		return template.Clone(raw.Root), nil
	}
	return pruned, nil
}

func (p *Populator) fill(ctx context.Context, name string, root template.Node, source string) (template.Node, error) {
	leaves := template.Leaves(root)
	views := make([]fieldView, len(leaves))
	for i, ref := range leaves {
		views[i] = fieldView{Path: ref.Path, Description: ref.Leaf.Description}
	}
	fields, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, err
	}

	chunks := ChunkDocument(source, p.maxTokens, p.count)
	if len(chunks) == 0 {
		chunks = []Chunk{{}}
	}

	candidates := make(map[string][]string)
	for i, chunk := range chunks {
		p.report(Progress{
			Step:       "fill",
			ItemIndex:  i + 1,
			TotalItems: len(chunks),
			Message:    fmt.Sprintf("Filling %s template (%d/%d)...", name, i+1, len(chunks)),
		})

		req := llm.GenerateRequest{
			Task:   llm.TaskFill,
			System: prompts.Fill,
			User:   prompts.FillUser(string(fields), chunk.Content),
		}
		reply, err := llm.GenerateJSON[assignReply](ctx, p.gen, req, p.attempts, nil)
		if err != nil {
			return nil, templateErr(name, err)
		}
		collect(candidates, root, reply.Answers, p.log)
	}

	out := template.Clone(root)
	for _, ref := range template.Leaves(out) {
		values := append([]string{ref.Leaf.Answer}, candidates[ref.Path.Key()]...)
		ref.Leaf.Answer = template.ResolveCandidates(values)
	}

	p.log.Info("populated template",
		zap.String("template", name),
		zap.Int("fields", len(leaves)),
		zap.Int("tbd", len(template.Unresolved(out, template.TBD))),
		zap.Int("conflict", len(template.Unresolved(out, template.Conflict))))
	return out, nil
}

// collect adds the values of every assignment that names a leaf of root.
func collect(into map[string][]string, root template.Node, answers []assignment, log *zap.Logger) {
	for _, a := range answers {
		path := template.Path(a.Path)
		if _, ok := template.LeafAt(root, path); !ok {
			log.Warn("skipping assignment to unknown field", zap.Stringer("path", path))
			continue
		}
		into[path.Key()] = append(into[path.Key()], a.Values...)
	}
}

func templateErr(name string, err error) error {
	if errors.Is(err, llm.ErrMalformedOutput) {
		return fmt.Errorf("%w: %s: %w", ErrMalformedTemplate, name, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}
