// Package writer turns a finished intake record into an executive summary.
package writer

import (
	"context"
	"errors"
	"strings"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/prompts"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
)

// ErrEmptySummary is returned when the model wrote nothing usable.
var ErrEmptySummary = errors.New("summary is empty")

// Streamer is implemented by generators that can show text as it arrives.
type Streamer interface {
	Stream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error)
}

// Writer generates the executive summary of a record
type Writer struct {
	gen llm.Generator
	log *zap.Logger
}

// NewWriter creates a new writer
func NewWriter(gen llm.Generator, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{gen: gen, log: log}
}

func (w *Writer) request(record template.Node) llm.GenerateRequest {
	return llm.GenerateRequest{
		Task:   llm.TaskSummary,
		System: prompts.Summary,
		User:   template.String(record),
	}
}

// Summarize writes the summary (non-streaming)
func (w *Writer) Summarize(ctx context.Context, record template.Node) (string, error) {
	text, err := w.gen.Generate(ctx, w.request(record))
	if err != nil {
		return "", err
	}

	summary := Clean(text)
	if summary == "" {
		return "", ErrEmptySummary
	}
	w.log.Info("summary written", zap.Int("chars", len(summary)))
	return summary, nil
}

// Stream writes the summary with streaming. Generators that cannot stream
// deliver the whole text as one chunk.
func (w *Writer) Stream(ctx context.Context, record template.Node) (<-chan llm.StreamEvent, error) {
	if s, ok := w.gen.(Streamer); ok {
		return s.Stream(ctx, w.request(record))
	}

	text, err := w.Summarize(ctx, record)
	if err != nil {
		return nil, err
	}
	events := make(chan llm.StreamEvent, 2)
	events <- llm.StreamEvent{Chunk: text}
	events <- llm.StreamEvent{Done: true}
	close(events)
	return events, nil
}

// Clean drops a markdown code fence wrapped around the whole summary.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
