package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/classify"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Progress reports what a long running step is doing.
type Progress struct {
	Phase      Phase
	Step       string
	ItemIndex  int
	TotalItems int
	Message    string
}

// Classifier picks the categories of a document.
type Classifier interface {
	Classify(ctx context.Context, text string) (classify.Classification, error)
}

// Summarizer writes the executive summary of a finished record.
type Summarizer interface {
	Summarize(ctx context.Context, record template.Node) (string, error)
}

// Exporter ships a finished record and returns how many rows were written.
type Exporter interface {
	Export(ctx context.Context, record template.Node) (int, error)
}

// TransitionRecorder counts phase changes.
type TransitionRecorder interface {
	ObserveTransition(from, to string)
}

type noopTransitions struct{}

func (noopTransitions) ObserveTransition(string, string) {}

// Options bound the work done per conversation.
type Options struct {
	MaxQuestions       int
	MaxConflictRounds  int
	StructuredAttempts int
	SynthesisAttempts  int
	SynthesisBackoff   time.Duration
	ChunkTokens        int
}

func DefaultOptions() Options {
	return Options{
		MaxQuestions:       DefaultMaxQuestions,
		MaxConflictRounds:  1,
		StructuredAttempts: 3,
		SynthesisAttempts:  3,
		SynthesisBackoff:   time.Second,
		ChunkTokens:        6000,
	}
}

// Deps are the collaborators of a Driver. Generator and Templates are
// required; a nil Summarizer or Exporter skips that part of finalizing.
type Deps struct {
	Generator  llm.Generator
	Templates  *template.Store
	Classifier Classifier
	Summarizer Summarizer
	Exporter   Exporter
	Recorder   TransitionRecorder
	Log        *zap.Logger
}

// Driver moves conversations through their phases. It holds no per
// conversation state besides the record of finished ingests, so one Driver
// serves any number of conversations.
type Driver struct {
	store      *template.Store
	classifier Classifier
	populator  *Populator
	synth      *Synthesizer
	merger     *Merger
	summarizer Summarizer
	exporter   Exporter
	recorder   TransitionRecorder
	opts       Options
	log        *zap.Logger
	onProgress func(Progress)

	group    singleflight.Group
	mu       sync.Mutex
	ingested map[string]State
}

func NewDriver(deps Deps, opts Options) *Driver {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.StructuredAttempts <= 0 {
		opts.StructuredAttempts = 1
	}
	if opts.SynthesisAttempts <= 0 {
		opts.SynthesisAttempts = 1
	}
	if opts.MaxConflictRounds < 0 {
		opts.MaxConflictRounds = 0
	}
	if opts.ChunkTokens <= 0 {
		opts.ChunkTokens = DefaultOptions().ChunkTokens
	}

	d := &Driver{
		store:      deps.Templates,
		classifier: deps.Classifier,
		populator:  NewPopulator(deps.Generator, opts.StructuredAttempts, opts.ChunkTokens, log.Named("populate")),
		synth:      NewSynthesizer(deps.Generator, opts.StructuredAttempts, opts.MaxQuestions, log.Named("questions")),
		merger:     NewMerger(deps.Generator, opts.StructuredAttempts, log.Named("merge")),
		summarizer: deps.Summarizer,
		exporter:   deps.Exporter,
		recorder:   deps.Recorder,
		opts:       opts,
		log:        log,
		ingested:   make(map[string]State),
	}
	if d.classifier == nil {
		d.classifier = classify.NewClassifier(deps.Generator, opts.StructuredAttempts, log.Named("classify"))
	}
	if d.recorder == nil {
		d.recorder = noopTransitions{}
	}
	d.populator.progress = d.progress
	return d
}

// SetProgressCallback sets the progress callback
func (d *Driver) SetProgressCallback(fn func(Progress)) {
	d.onProgress = fn
}

func (d *Driver) progress(p Progress) {
	if d.onProgress != nil {
		d.onProgress(p)
	}
}

// Start opens a new conversation.
func (d *Driver) Start() State {
	s := NewState()
	d.log.Info("conversation started", zap.String("conversation", s.ID))
	return s
}

// Ingest reads the document into the conversation and prepares the first
// questions. Ingesting the same document again is a no-op, and concurrent
// calls for it share one run. On failure the returned state still awaits
// its document.
func (d *Driver) Ingest(ctx context.Context, s State, doc *document.Document) (State, error) {
	if doc == nil {
		return s, fmt.Errorf("%w: no document", ErrInvalidTransition)
	}
	if s.Phase != PhaseAwaitingDocument {
		if s.DocumentKey == doc.Key() {
			return s, nil
		}
		return s, fmt.Errorf("%w: cannot ingest a document while %s", ErrInvalidTransition, s.Phase)
	}

	key := s.ID + ":" + doc.Key()
	d.mu.Lock()
	done, ok := d.ingested[key]
	d.mu.Unlock()
	if ok {
		d.log.Debug("document already ingested", zap.String("conversation", s.ID))
		return done, nil
	}

	v, err, shared := d.group.Do(key, func() (any, error) {
		// a caller that missed the cache may arrive after the shared run ended
		d.mu.Lock()
		done, ok := d.ingested[key]
		d.mu.Unlock()
		if ok {
			return done, nil
		}

		ns, err := d.ingest(ctx, s, doc)
		if err == nil {
			d.mu.Lock()
			d.ingested[key] = ns
			d.mu.Unlock()
		}
		return ns, err
	})
	if shared {
		d.log.Debug("joined running ingest", zap.String("conversation", s.ID))
	}
	return v.(State), err
}

func (d *Driver) ingest(ctx context.Context, s State, doc *document.Document) (State, error) {
	ns := s.clone()
	ns.DocumentKey = doc.Key()
	ns.DocumentTitle = doc.Metadata.Title
	ns.Source = doc.Content
	ns.LastError, ns.Fatal = "", false
	ns = d.enter(ns, PhasePopulating)

	d.progress(Progress{Phase: PhasePopulating, Step: "classify", Message: "Classifying the problem..."})
	cls, err := d.classifier.Classify(ctx, doc.Content)
	if err != nil {
		return d.abortIngest(s, err)
	}
	ns.Classification = cls

	biz, err := d.populator.Populate(ctx, d.store.BusinessObjective(), cls.String(), doc.Content, false)
	if err != nil {
		return d.abortIngest(s, fmt.Errorf("populating: %w", err))
	}
	obs, err := d.populator.Populate(ctx, d.store.Observation(), cls.String(), doc.Content, true)
	if err != nil {
		return d.abortIngest(s, fmt.Errorf("populating: %w", err))
	}
	ns.Templates = []template.Named{biz, obs}

	questions, err := d.synthesize(ctx, ModeInitial, ns.Templates...)
	if err != nil {
		return d.abortIngest(s, err)
	}
	ns.Questions = questions
	ns.Answers = nil

	if len(questions) == 0 {
		d.log.Info("nothing to ask", zap.String("conversation", ns.ID))
		return d.merge(ctx, d.enter(ns, PhaseMerging))
	}
	return d.enter(ns, PhaseAskingInitial), nil
}

func (d *Driver) abortIngest(s State, err error) (State, error) {
	d.log.Error("ingest failed", zap.String("conversation", s.ID), zap.Error(err))
	d.recorder.ObserveTransition(PhasePopulating.String(), s.Phase.String())
	return failed(s, err), err
}

// Answer records the reply to the current question. After the last one the
// answers are merged and the conversation moves on.
func (d *Driver) Answer(ctx context.Context, s State, text string) (State, error) {
	q, ok := s.Current()
	if !ok {
		return s, fmt.Errorf("%w: no question waiting while %s", ErrInvalidTransition, s.Phase)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s, ErrEmptyAnswer
	}

	ns := s.withAnswer(Answer{QuestionID: q.ID, Text: text})
	if ns.Index() < len(ns.Questions) {
		return ns, nil
	}

	next := PhaseMerging
	if s.Phase == PhaseAskingConflict {
		next = PhaseMergingConflict
	}
	return d.merge(ctx, d.enter(ns, next))
}

// Resume retries the step a conversation failed in.
func (d *Driver) Resume(ctx context.Context, s State) (State, error) {
	if s.Fatal {
		return s, fmt.Errorf("%w: %s", ErrNotRetryable, s.LastError)
	}
	switch s.Phase {
	case PhaseMerging, PhaseMergingConflict:
		return d.merge(ctx, s)
	case PhaseFinalizing:
		return d.finalize(ctx, s)
	default:
		return s, fmt.Errorf("%w: nothing to resume while %s", ErrInvalidTransition, s.Phase)
	}
}

// merge applies the answers of the finished round and decides what comes
// next. On failure the state stays in its merging phase for Resume.
func (d *Driver) merge(ctx context.Context, s State) (State, error) {
	mode := s.Phase.Mode()
	d.progress(Progress{Phase: s.Phase, Step: "merge", Message: "Merging your answers..."})

	sources := s.Templates
	if mode == ModeConflict {
		sources = []template.Named{{Name: "record", Root: s.Merged}}
	}
	merged, err := d.merger.Merge(ctx, mode, s.Questions, s.Answers, sources...)
	if err != nil {
		return failed(s, err), err
	}

	ns := s.clone()
	ns.Merged = merged
	ns.LastError, ns.Fatal = "", false
	if mode == ModeConflict {
		ns.Round++
	}

	if template.HasConflict(merged) {
		if ns.Round < d.opts.MaxConflictRounds {
			questions, err := d.synthesize(ctx, ModeConflict, template.Named{Name: "record", Root: merged})
			if err != nil {
				return failed(s, err), err
			}
			if len(questions) > 0 {
				ns.Questions = questions
				ns.Answers = nil
				return d.enter(ns, PhaseAskingConflict), nil
			}
		}
		d.log.Warn("accepting unresolved conflicts",
			zap.String("conversation", ns.ID),
			zap.Int("round", ns.Round),
			zap.Strings("fields", conflictPaths(merged)))
	}

	return d.finalize(ctx, d.enter(ns, PhaseFinalizing))
}

// finalize writes the summary and exports the record. Only a summary failure
// keeps the conversation from finishing.
func (d *Driver) finalize(ctx context.Context, s State) (State, error) {
	ns := s.clone()

	if d.summarizer != nil {
		d.progress(Progress{Phase: PhaseFinalizing, Step: "summary", Message: "Writing the executive summary..."})
		summary, err := d.summarizer.Summarize(ctx, s.Merged)
		if err != nil {
			err = fmt.Errorf("writing summary: %w", err)
			return failed(s, err), err
		}
		ns.Summary = summary
	}

	if d.exporter != nil {
		d.progress(Progress{Phase: PhaseFinalizing, Step: "export", Message: "Exporting the record..."})
		n, err := d.exporter.Export(ctx, s.Merged)
		if err != nil {
			d.log.Warn("export incomplete", zap.String("conversation", s.ID), zap.Int("exported", n), zap.Error(err))
		}
		ns.Exported = n
	}

	ns.LastError, ns.Fatal = "", false
	return d.enter(ns, PhaseTerminal), nil
}

// synthesize retries question synthesis on any failure but cancellation.
func (d *Driver) synthesize(ctx context.Context, mode Mode, sources ...template.Named) ([]Question, error) {
	d.progress(Progress{Step: "questions", Message: "Preparing " + mode.String() + " questions..."})
	policy := llm.RetryPolicy{
		MaxAttempts:   d.opts.SynthesisAttempts,
		InitialDelay:  d.opts.SynthesisBackoff,
		BackoffFactor: 2,
		Classifier: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}

	var questions []Question
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		questions, err = d.synth.Synthesize(ctx, mode, sources...)
		return err
	}, func(attempt int, err error) {
		d.log.Warn("question synthesis failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing %s questions: %w", mode, err)
	}
	return questions, nil
}

func (d *Driver) enter(s State, to Phase) State {
	from := s.Phase
	s.Phase = to
	d.log.Info("phase changed",
		zap.String("conversation", s.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("round", s.Round))
	d.recorder.ObserveTransition(from.String(), to.String())
	d.progress(Progress{Phase: to})
	return s
}

func failed(s State, err error) State {
	ns := s.clone()
	ns.LastError = err.Error()
	ns.Fatal = errors.Is(err, template.ErrStructuralConflict)
	return ns
}

func conflictPaths(n template.Node) []string {
	refs := template.Unresolved(n, template.Conflict)
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.Path.String()
	}
	return out
}
