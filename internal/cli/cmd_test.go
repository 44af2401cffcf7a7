package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/export"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const finishedRecord = `{
  "Customer": {
    "Category": "Customer",
    "Company Name": {"Description": "company", "User Answer": "Acme"}
  }
}`

// scriptedEngine asks two questions and can fail the merge once.
type scriptedEngine struct {
	failMerge  bool
	fatalMerge bool
	resumed   int
	docs      []*document.Document
}

func (e *scriptedEngine) Start() pipeline.State { return pipeline.NewState() }

func (e *scriptedEngine) Ingest(_ context.Context, s pipeline.State, doc *document.Document) (pipeline.State, error) {
	e.docs = append(e.docs, doc)
	s.Phase = pipeline.PhaseAskingInitial
	s.DocumentKey = doc.Key()
	s.Questions = []pipeline.Question{
		{ID: "q1", Text: "What is the company name?"},
		{ID: "q2", Text: "How fast is the line?"},
	}
	return s, nil
}

func (e *scriptedEngine) Answer(ctx context.Context, s pipeline.State, text string) (pipeline.State, error) {
	if strings.TrimSpace(text) == "" {
		return s, pipeline.ErrEmptyAnswer
	}
	q, _ := s.Current()
	s.Answers = append(append([]pipeline.Answer(nil), s.Answers...), pipeline.Answer{QuestionID: q.ID, Text: text})
	if len(s.Answers) < len(s.Questions) {
		return s, nil
	}
	s.Phase = pipeline.PhaseMerging
	if e.failMerge {
		e.failMerge = false
		s.LastError = "model unavailable"
		return s, llm.ErrTransientService
	}
	if e.fatalMerge {
		err := fmt.Errorf("combining templates: %w", &template.StructuralConflictError{Path: template.Path{"D"}, Reason: "descriptions differ"})
		s.LastError, s.Fatal = err.Error(), true
		return s, err
	}
	return e.finish(s)
}

func (e *scriptedEngine) Resume(_ context.Context, s pipeline.State) (pipeline.State, error) {
	e.resumed++
	return e.finish(s)
}

func (e *scriptedEngine) finish(s pipeline.State) (pipeline.State, error) {
	merged, err := template.ParseString(finishedRecord)
	if err != nil {
		return s, err
	}
	s.Merged = merged
	s.Phase = pipeline.PhaseTerminal
	s.Summary = "# Acme\nWasher inspection."
	s.Exported = 1
	return s, nil
}

type stubGenerator struct {
	text string
}

func (g stubGenerator) Generate(context.Context, llm.GenerateRequest) (string, error) {
	return g.text, nil
}

func appWith(engine *scriptedEngine) *App {
	return &App{
		Version: "1.2.3",
		Build: func(Options) (*Runtime, error) {
			return &Runtime{
				Config:    config.DefaultConfig(),
				Log:       zap.NewNop(),
				Engine:    engine,
				Extractor: document.NewExtractor(nil),
				Writer:    writer.NewWriter(stubGenerator{text: "```\n# Summary\nAll good.\n```"}, nil),
			}, nil
		},
	}
}

// executeCmd runs a cobra command with stdin and captures stdout/stderr.
func executeCmd(t *testing.T, app *App, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRunCmd_AsksEachQuestion(t *testing.T) {
	engine := &scriptedEngine{}
	out, err := executeCmd(t, appWith(engine), "Acme\n200 a minute\n", "run", "--text", "Measure washers")
	require.NoError(t, err)

	assert.Contains(t, out, "[1/2] What is the company name?")
	assert.Contains(t, out, "[2/2] How fast is the line?")
	assert.Contains(t, out, "Washer inspection.")
	assert.Contains(t, out, "Exported 1 fields.")
	require.Len(t, engine.docs, 1)
	assert.Equal(t, "Measure washers", engine.docs[0].Content)
}

func TestRunCmd_ReadsFileAndWritesRecord(t *testing.T) {
	dir := t.TempDir()
	brief := filepath.Join(dir, "brief.txt")
	require.NoError(t, os.WriteFile(brief, []byte("Washers are 10mm."), 0o644))
	record := filepath.Join(dir, "record.json")

	engine := &scriptedEngine{}
	out, err := executeCmd(t, appWith(engine), "Acme\nfast\n", "run", brief, "-o", record)
	require.NoError(t, err)
	assert.Contains(t, out, "Record written to")

	require.Len(t, engine.docs, 1)
	assert.Equal(t, "brief", engine.docs[0].Metadata.Title)

	data, err := os.ReadFile(record)
	require.NoError(t, err)
	n, err := template.Parse(data)
	require.NoError(t, err)
	leaf, ok := template.LeafAt(n, template.Path{"Customer", "Company Name"})
	require.True(t, ok)
	assert.Equal(t, "Acme", leaf.Answer)
}

func TestRunCmd_EmptyAnswerAsksAgain(t *testing.T) {
	out, err := executeCmd(t, appWith(&scriptedEngine{}), "\nAcme\nfast\n", "run", "--text", "x")
	require.NoError(t, err)
	assert.Contains(t, out, "Please type an answer.")
	assert.Equal(t, 2, strings.Count(out, "[1/2]"))
}

func TestRunCmd_RetriesFailedMerge(t *testing.T) {
	engine := &scriptedEngine{failMerge: true}
	out, err := executeCmd(t, appWith(engine), "Acme\nfast\n\n", "run", "--text", "x")
	require.NoError(t, err)
	assert.Contains(t, out, "Retry? [Y/n]")
	assert.Equal(t, 1, engine.resumed)
	assert.Contains(t, out, "Washer inspection.")
}

func TestRunCmd_DeclinedRetryFails(t *testing.T) {
	engine := &scriptedEngine{failMerge: true}
	_, err := executeCmd(t, appWith(engine), "Acme\nfast\nn\n", "run", "--text", "x")
	assert.ErrorIs(t, err, llm.ErrTransientService)
	assert.Zero(t, engine.resumed)
}

func TestRunCmd_StructuralConflictIsNotOfferedRetry(t *testing.T) {
	engine := &scriptedEngine{fatalMerge: true}
	out, err := executeCmd(t, appWith(engine), "Acme\nfast\ny\n", "run", "--text", "x")
	assert.ErrorIs(t, err, template.ErrStructuralConflict)
	assert.NotContains(t, out, "Retry?")
	assert.Zero(t, engine.resumed)
}

func TestRunCmd_InputEnds(t *testing.T) {
	_, err := executeCmd(t, appWith(&scriptedEngine{}), "Acme\n", "run", "--text", "x")
	assert.ErrorContains(t, err, "input ended before question 2")
}

func TestRunCmd_NeedsADocument(t *testing.T) {
	_, err := executeCmd(t, appWith(&scriptedEngine{}), "", "run")
	assert.EqualError(t, err, "give a document path or --text")
}

func TestRunCmd_BuildError(t *testing.T) {
	app := &App{Build: func(Options) (*Runtime, error) { return nil, errors.New("no api key") }}
	_, err := executeCmd(t, app, "", "run", "--text", "x")
	assert.EqualError(t, err, "no api key")
}

func TestSummarizeCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(finishedRecord), 0o644))

	out, err := executeCmd(t, appWith(&scriptedEngine{}), "", "summarize", path)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\nAll good.\n", out)
}

func TestExportsCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "intake.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("export:\n  db_path: "+dbPath+"\n"), 0o600))

	app := appWith(&scriptedEngine{})

	out, err := executeCmd(t, app, "", "exports", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "No exports yet.\n", out)

	db, err := export.OpenDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, export.NewSQLiteSink(db).WriteBatch(context.Background(), "exp-1", []export.Record{
		{Category: "2D Measurement", SubCategory: "Diameter", Description: "diameter", Answer: "10mm"},
	}))
	require.NoError(t, db.Close())

	out, err = executeCmd(t, app, "", "exports", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "exp-1\n", out)

	out, err = executeCmd(t, app, "", "exports", "exp-1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sub-category")
	assert.Contains(t, out, "10mm")

	out, err = executeCmd(t, app, "", "exports", "exp-1", "--json", "--config", cfgPath)
	require.NoError(t, err)
	var records []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "10mm", records[0]["User Answer"])

	_, err = executeCmd(t, app, "", "exports", "missing", "--config", cfgPath)
	assert.EqualError(t, err, "no export missing")
}

func TestRootCmd_NonInteractiveShowsHelp(t *testing.T) {
	app := appWith(&scriptedEngine{})
	app.IsInteractive = func() bool { return false }

	out, err := executeCmd(t, app, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "serve")
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCmd(t, appWith(&scriptedEngine{}), "", "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestSetupAnswers_Apply(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKey = "gsk-old"

	a := answersFrom(cfg)
	a.Provider = "ollama"
	a.Model = "llama3.1:8b"
	a.APIKey = ""
	a.apply(cfg)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Empty(t, cfg.APIKey)
	require.NoError(t, cfg.Validate())

	a = answersFrom(cfg)
	a.Sink = "airtable"
	a.AirtableBase = "app123"
	a.AirtableKey = "pat456"
	a.apply(cfg)
	assert.Equal(t, "airtable", cfg.Export.Sink)
	assert.Equal(t, "app123", cfg.Export.Airtable.BaseID)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	got, cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestDriverOptions(t *testing.T) {
	opts := driverOptions(config.IntakeConfig{MaxQuestions: 5, MaxConflictRounds: 2, StructuredAttempts: 4, SynthesisAttempts: 1})
	assert.Equal(t, 5, opts.MaxQuestions)
	assert.Equal(t, 2, opts.MaxConflictRounds)
	assert.Equal(t, 4, opts.StructuredAttempts)
	assert.Equal(t, 1, opts.SynthesisAttempts)
	assert.Equal(t, pipeline.DefaultOptions().ChunkTokens, opts.ChunkTokens)
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "Long header"}, [][]string{{"wide cell", "x"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "Long header"), strings.Index(lines[2], "x"))
	assert.Empty(t, renderTable(nil, nil))
}
