package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

type AnthropicProvider struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &AnthropicProvider{
		apiKey:     apiKey,
		model:      model,
		url:        anthropicURL,
		httpClient: newHTTPClient(),
	}
}

func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

func (a *AnthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (a *AnthropicProvider) Ping(ctx context.Context) error {
	// No ping endpoint; a one-token request proves the key works.
	resp, err := post(ctx, a.httpClient, "anthropic", a.url, a.headers(), anthropicRequest{
		Model:     a.model,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("anthropic: invalid API key")
		}
		return err
	}
	resp.Body.Close()
	return nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        float64            `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Usage *anthropicUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicProvider) request(req *CompletionRequest, stream bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	system, rest := splitSystem(req.Messages)
	messages := make([]anthropicMessage, len(rest))
	for i, m := range rest {
		messages[i] = anthropicMessage{Role: m.Role, Content: m.Content}
	}

	temp := req.Temperature
	return anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: &temp,
		TopP:        req.TopP,
		Stream:      stream,
	}
}

func (a *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	apiReq := a.request(req, false)

	resp, err := post(ctx, a.httpClient, "anthropic", a.url, a.headers(), apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("%w: no content from anthropic", ErrEmptyResponse)
	}

	return &CompletionResponse{
		Content:      apiResp.Content[0].Text,
		Model:        apiReq.Model,
		FinishReason: apiResp.StopReason,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
	}, nil
}

func (a *AnthropicProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := post(ctx, a.httpClient, "anthropic", a.url, a.headers(), a.request(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		var usage Usage
		var streamErr error
		done := false
		err := sseData(resp.Body, func(data string) bool {
			var event anthropicEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return true
			}

			switch event.Type {
			case "message_start":
				usage.PromptTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text != "" {
					return send(ctx, events, StreamEvent{Chunk: event.Delta.Text})
				}
			case "message_delta":
				if event.Usage != nil {
					usage.CompletionTokens = event.Usage.OutputTokens
				}
			case "message_stop":
				done = true
				return false
			case "error":
				msg, kind := "unknown error", ""
				if event.Error != nil {
					msg, kind = event.Error.Message, event.Error.Type
				}
				streamErr = errors.New("anthropic stream error: " + msg)
				switch kind {
				case "overloaded_error", "api_error", "rate_limit_error", "timeout_error":
					streamErr = transient(streamErr)
				}
				return false
			}
			return true
		})

		if err == nil {
			err = streamErr
		}
		switch {
		case err != nil:
			send(ctx, events, StreamEvent{Error: err})
		case done:
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			send(ctx, events, StreamEvent{Done: true, Usage: &usage})
		case ctx.Err() == nil:
			send(ctx, events, StreamEvent{Error: transient(errors.New("anthropic stream ended before completion"))})
		}
	}()

	return events, nil
}
