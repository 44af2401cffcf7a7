package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Task names a kind of generation call for logging, metrics and sampling.
type Task string

const (
	TaskClassify  Task = "classify"
	TaskPrune     Task = "prune"
	TaskFill      Task = "fill"
	TaskQuestions Task = "questions"
	TaskMerge     Task = "merge"
	TaskSummary   Task = "summary"
)

// DefaultSampling returns the sampling used for a task when a call site does
// not pick its own.
func DefaultSampling(task Task) Sampling {
	switch task {
	case TaskClassify:
		return Sampling{Temperature: 0.21, MaxTokens: 2048, TopP: 1}
	case TaskQuestions:
		return Sampling{Temperature: 0.73, MaxTokens: 2240, TopP: 1}
	case TaskSummary:
		return Sampling{Temperature: 0.73, MaxTokens: 5610, TopP: 1}
	default:
		return Sampling{Temperature: 0.21, MaxTokens: 8000, TopP: 1}
	}
}

// GenerateRequest is a single system + user prompt.
type GenerateRequest struct {
	Task     Task
	System   string
	User     string
	Sampling Sampling
}

// Generator turns a prompt into the complete text of the answer.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Recorder receives one observation per provider attempt.
type Recorder interface {
	ObserveRequest(provider, task, status string, d time.Duration, promptTokens, completionTokens int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRequest(string, string, string, time.Duration, int, int) {}

// Client wraps a Provider with stream accumulation, retries, logging and metrics.
type Client struct {
	provider Provider
	model    string
	retry    RetryPolicy
	log      *zap.Logger
	recorder Recorder
	tokens   *TokenCounter
}

type Option func(*Client)

func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider: p,
		retry:    DefaultRetryPolicy(),
		log:      zap.NewNop(),
		recorder: noopRecorder{},
		tokens:   NewTokenCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Provider() Provider {
	return c.provider
}

func (c *Client) request(req GenerateRequest) *CompletionRequest {
	s := req.Sampling
	if s == (Sampling{}) {
		s = DefaultSampling(req.Task)
	}
	return NewRequest(c.model, req.System, req.User, s)
}

// Generate streams a completion and returns the accumulated text. Only a
// stream that ends with its completion marker counts; anything else is a
// transient failure and the whole call is retried.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var text string
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = c.attempt(ctx, req)
		return err
	}, func(attempt int, err error) {
		c.log.Warn("generation attempt failed, retrying",
			zap.String("provider", c.provider.Name()),
			zap.String("task", string(req.Task)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		if IsTransient(err) {
			err = transient(err)
		}
		c.log.Error("generation failed",
			zap.String("provider", c.provider.Name()),
			zap.String("task", string(req.Task)),
			zap.Error(err))
		return "", err
	}
	return text, nil
}

func (c *Client) attempt(ctx context.Context, req GenerateRequest) (string, error) {
	start := time.Now()
	creq := c.request(req)

	text, usage, err := c.collect(ctx, creq)

	status := "success"
	switch {
	case err == nil:
	case IsTransient(err):
		status = "transient"
	default:
		status = "error"
	}

	prompt, completion := 0, 0
	if usage != nil && usage.TotalTokens > 0 {
		prompt, completion = usage.PromptTokens, usage.CompletionTokens
	} else {
		prompt = c.tokens.Count(req.System) + c.tokens.Count(req.User)
		completion = c.tokens.Count(text)
	}
	c.recorder.ObserveRequest(c.provider.Name(), string(req.Task), status, time.Since(start), prompt, completion)

	c.log.Debug("generation attempt",
		zap.String("provider", c.provider.Name()),
		zap.String("task", string(req.Task)),
		zap.String("status", status),
		zap.Duration("latency", time.Since(start)),
		zap.Int("prompt_tokens", prompt),
		zap.Int("completion_tokens", completion))

	return text, err
}

func (c *Client) collect(ctx context.Context, creq *CompletionRequest) (string, *Usage, error) {
	// Cancelling on return stops the provider goroutine if we bail out early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := c.provider.Stream(ctx, creq)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	for ev := range events {
		if ev.Error != nil {
			if IsTransient(ev.Error) {
				return sb.String(), nil, transient(ev.Error)
			}
			return sb.String(), nil, ev.Error
		}
		sb.WriteString(ev.Chunk)
		if ev.Done {
			text := sb.String()
			if strings.TrimSpace(text) == "" {
				return "", ev.Usage, fmt.Errorf("%w from %s", ErrEmptyResponse, c.provider.Name())
			}
			return text, ev.Usage, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return sb.String(), nil, err
	}
	return sb.String(), nil, transient(errors.New("stream closed before completion"))
}

// Stream passes a single streamed completion through, for surfaces that show
// text as it arrives. It is not retried.
func (c *Client) Stream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error) {
	events, err := c.provider.Stream(ctx, c.request(req))
	if err != nil {
		c.recorder.ObserveRequest(c.provider.Name(), string(req.Task), "error", 0, 0, 0)
		return nil, err
	}
	return events, nil
}
