package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// fakeProvider replays one scripted stream per call.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	openErrs []error
	streams  [][]StreamEvent
	requests []*CompletionRequest
}

func (p *fakeProvider) Name() string                 { return "fake" }
func (p *fakeProvider) Ping(ctx context.Context) error { return nil }

func (p *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return nil, errors.New("not used")
}

func (p *fakeProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if i < len(p.openErrs) && p.openErrs[i] != nil {
		return nil, p.openErrs[i]
	}
	evs := p.streams[min(i, len(p.streams)-1)]

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range evs {
			if !send(ctx, ch, ev) {
				return
			}
		}
	}()
	return ch, nil
}

type recordedCall struct {
	task, status string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) ObserveRequest(provider, task, status string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{task: task, status: status})
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffFactor: 2}
}

func TestClient_AccumulatesStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := &fakeProvider{streams: [][]StreamEvent{{
		{Chunk: `{"a":`}, {Chunk: ` 1}`}, {Done: true, Usage: &Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8}},
	}}}
	rec := &fakeRecorder{}
	c := NewClient(p, WithRetry(fastRetry()), WithRecorder(rec), WithLogger(zaptest.NewLogger(t)), WithModel("m"))

	got, err := c.Generate(context.Background(), GenerateRequest{Task: TaskFill, System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, []recordedCall{{"fill", "success"}}, rec.calls)

	req := p.requests[0]
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 0.21, req.Temperature)
	assert.Equal(t, 8000, req.MaxTokens)
	assert.Equal(t, []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}}, req.Messages)
}

func TestClient_RetriesTruncatedStreams(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tests := []struct {
		name  string
		first []StreamEvent
	}{
		{"closed without completion", []StreamEvent{{Chunk: `{"a":`}}},
		{"error mid stream", []StreamEvent{{Chunk: `{"a":`}, {Error: errors.New("connection reset")}, {Chunk: "never read"}}},
		{"empty response", []StreamEvent{{Chunk: "  "}, {Done: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{streams: [][]StreamEvent{tt.first, {{Chunk: "ok"}, {Done: true}}}}
			rec := &fakeRecorder{}
			c := NewClient(p, WithRetry(fastRetry()), WithRecorder(rec))

			got, err := c.Generate(context.Background(), GenerateRequest{Task: TaskMerge})
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
			assert.Equal(t, 2, p.calls)
			assert.Equal(t, "transient", rec.calls[0].status)
		})
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := &fakeProvider{streams: [][]StreamEvent{{{Chunk: "partial"}}}}
	c := NewClient(p, WithRetry(fastRetry()))

	_, err := c.Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientService)
	assert.Equal(t, 3, p.calls)
}

func TestClient_PermanentErrorsAreNotRetried(t *testing.T) {
	p := &fakeProvider{
		openErrs: []error{&StatusError{Provider: "fake", StatusCode: http.StatusUnauthorized, Body: "bad key"}},
		streams:  [][]StreamEvent{{{Done: true}}},
	}
	rec := &fakeRecorder{}
	c := NewClient(p, WithRetry(fastRetry()), WithRecorder(rec))

	_, err := c.Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransientService)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 401, se.StatusCode)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "error", rec.calls[0].status)
}

func TestClient_PermanentStreamErrorIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := &fakeProvider{streams: [][]StreamEvent{
		{{Error: errors.New("ollama: model 'llama9' not found")}},
		{{Chunk: "ok"}, {Done: true}},
	}}
	rec := &fakeRecorder{}
	c := NewClient(p, WithRetry(fastRetry()), WithRecorder(rec))

	_, err := c.Generate(context.Background(), GenerateRequest{Task: TaskFill})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransientService)
	assert.ErrorContains(t, err, "not found")
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, []recordedCall{{"fill", "error"}}, rec.calls)
}

func TestAnthropic_OverloadedStreamIsTransient(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})

	p := NewAnthropicProvider("key", "m")
	p.url = srv.URL
	defer p.httpClient.CloseIdleConnections()

	events, err := p.Stream(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	var last StreamEvent
	for ev := range events {
		last = ev
	}
	require.Error(t, last.Error)
	assert.ErrorIs(t, last.Error, ErrTransientService)
}

func TestClient_CancelledContextStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProvider{streams: [][]StreamEvent{{{Chunk: "a"}, {Chunk: "b"}}}}
	c := NewClient(p, WithRetry(fastRetry()))

	_, err := c.Generate(ctx, GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func sseServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int)) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		handler(w, r, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompatible_StreamsThroughClient(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, call int) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if call == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limited"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"[\\\"OCR\\\"\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"]\"},\"finish_reason\":\"stop\"}],\"x_groq\":{\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":2,\"total_tokens\":9}}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p := NewCustomProvider(srv.URL+"/", "key", "llama")
	defer p.httpClient.CloseIdleConnections()

	c := NewClient(p, WithRetry(fastRetry()))
	got, err := c.Generate(context.Background(), GenerateRequest{Task: TaskClassify})
	require.NoError(t, err)
	assert.Equal(t, `["OCR"]`, got)
}

func TestOpenAICompatible_TruncatedStream(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"half\"}}]}\n\n")
	})

	p := NewCustomProvider(srv.URL, "", "m")
	defer p.httpClient.CloseIdleConnections()

	events, err := p.Stream(context.Background(), &CompletionRequest{})
	require.NoError(t, err)

	var chunks []string
	var last StreamEvent
	for ev := range events {
		chunks = append(chunks, ev.Chunk)
		last = ev
	}
	assert.Equal(t, "half", chunks[0])
	require.Error(t, last.Error)
	assert.Contains(t, last.Error.Error(), "ended before completion")
}

func TestAnthropic_Stream(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":4}}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello \"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"there\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	})

	p := NewAnthropicProvider("k", "")
	p.url = srv.URL
	defer p.httpClient.CloseIdleConnections()

	got, err := NewClient(p).Generate(context.Background(), GenerateRequest{Task: TaskSummary})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got)
}

func TestOllama_Stream(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"10"}}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"mm"}}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":3,"eval_count":2}`)
	})

	p := NewOllamaProvider(srv.URL, "llama3.1:8b")
	defer p.httpClient.CloseIdleConnections()

	got, err := NewClient(p).Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "10mm", got)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{ErrTransientService, true},
		{fmt.Errorf("wrapped: %w", ErrEmptyResponse), true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 503}, true},
		{&StatusError{StatusCode: 400}, false},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("unexpected EOF"), true},
		{ErrMalformedOutput, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	err := &StatusError{Provider: "groq", StatusCode: 500, Body: strings.Repeat("x", 500)}
	assert.Less(t, len(err.Error()), 300)
}
