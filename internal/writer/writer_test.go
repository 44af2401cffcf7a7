package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedGen struct {
	text string
	err  error
	req  llm.GenerateRequest
}

func (c *cannedGen) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	c.req = req
	return c.text, c.err
}

type streamingGen struct {
	cannedGen
	streamed bool
}

func (s *streamingGen) Stream(_ context.Context, req llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	s.streamed = true
	s.req = req
	events := make(chan llm.StreamEvent, 3)
	events <- llm.StreamEvent{Chunk: "# Executive "}
	events <- llm.StreamEvent{Chunk: "Summary"}
	events <- llm.StreamEvent{Done: true}
	close(events)
	return events, nil
}

func record(t *testing.T) template.Node {
	t.Helper()
	n, err := template.ParseString(`{"Customer": {"Company Name": {"Description": "company", "User Answer": "Acme"}}}`)
	require.NoError(t, err)
	return n
}

func drain(t *testing.T, events <-chan llm.StreamEvent) string {
	t.Helper()
	var text string
	for ev := range events {
		require.NoError(t, ev.Error)
		text += ev.Chunk
	}
	return text
}

func TestSummarize(t *testing.T) {
	gen := &cannedGen{text: "```markdown\n# Executive Summary\n\nAcme wants inspection.\n```"}
	w := NewWriter(gen, nil)

	got, err := w.Summarize(context.Background(), record(t))
	require.NoError(t, err)
	assert.Equal(t, "# Executive Summary\n\nAcme wants inspection.", got)

	assert.Equal(t, llm.TaskSummary, gen.req.Task)
	assert.Contains(t, gen.req.User, `"User Answer": "Acme"`)
	assert.Contains(t, gen.req.System, "executive summary")
}

func TestSummarize_Errors(t *testing.T) {
	_, err := NewWriter(&cannedGen{text: "  \n "}, nil).Summarize(context.Background(), record(t))
	assert.ErrorIs(t, err, ErrEmptySummary)

	boom := errors.New("boom")
	_, err = NewWriter(&cannedGen{err: boom}, nil).Summarize(context.Background(), record(t))
	assert.ErrorIs(t, err, boom)
}

func TestStream(t *testing.T) {
	t.Run("streaming generator", func(t *testing.T) {
		gen := &streamingGen{}
		events, err := NewWriter(gen, nil).Stream(context.Background(), record(t))
		require.NoError(t, err)
		assert.Equal(t, "# Executive Summary", drain(t, events))
		assert.True(t, gen.streamed)
		assert.Equal(t, llm.TaskSummary, gen.req.Task)
	})

	t.Run("plain generator", func(t *testing.T) {
		events, err := NewWriter(&cannedGen{text: "Summary text"}, nil).Stream(context.Background(), record(t))
		require.NoError(t, err)
		assert.Equal(t, "Summary text", drain(t, events))
	})
}

func TestClean(t *testing.T) {
	assert.Equal(t, "plain", Clean("  plain \n"))
	assert.Equal(t, "body", Clean("```\nbody\n```"))
	assert.Equal(t, "```not closed\nbody", Clean("```not closed\nbody"))
}
