package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIProvider speaks the OpenAI chat completions API. Groq, OpenRouter and
// self-hosted gateways expose the same API under a different base URL.
type OpenAIProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func newOpenAICompatible(name, baseURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		name:       name,
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return newOpenAICompatible("openai", "https://api.openai.com/v1", apiKey, model)
}

func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "llama-3.1-70b-versatile"
	}
	return newOpenAICompatible("groq", "https://api.groq.com/openai/v1", apiKey, model)
}

func NewOpenRouterProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "meta-llama/llama-3.1-70b-instruct"
	}
	return newOpenAICompatible("openrouter", "https://openrouter.ai/api/v1", apiKey, model)
}

func NewCustomProvider(baseURL, apiKey, model string) *OpenAIProvider {
	return newOpenAICompatible("custom", baseURL, apiKey, model)
}

func (o *OpenAIProvider) Name() string {
	return o.name
}

func (o *OpenAIProvider) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

func (o *OpenAIProvider) Ping(ctx context.Context) error {
	return get(ctx, o.httpClient, o.name, o.baseURL+"/models", o.headers())
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage,omitempty"`
	XGroq *struct {
		Usage *openAIUsage `json:"usage,omitempty"`
	} `json:"x_groq,omitempty"`
}

func (o *OpenAIProvider) request(req *CompletionRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}
	msgs := make([]openAIMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openAIMessage{Role: m.Role, Content: m.Content}
	}
	return openAIRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}
}

func (o *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	apiReq := o.request(req, false)

	resp, err := post(ctx, o.httpClient, o.name, o.baseURL+"/chat/completions", o.headers(), apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", o.name, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices from %s", ErrEmptyResponse, o.name)
	}

	return &CompletionResponse{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiReq.Model,
		FinishReason: apiResp.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAIProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := post(ctx, o.httpClient, o.name, o.baseURL+"/chat/completions", o.headers(), o.request(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		var usage *Usage
		done := false
		err := sseData(resp.Body, func(data string) bool {
			if data == "[DONE]" {
				done = true
				return false
			}

			var chunk openAIStreamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return true
			}
			if u := chunk.usage(); u != nil {
				usage = u
			}
			if len(chunk.Choices) == 0 {
				return true
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !send(ctx, events, StreamEvent{Chunk: text}) {
					return false
				}
			}
			if chunk.Choices[0].FinishReason != nil {
				done = true
			}
			return true
		})

		switch {
		case err != nil:
			send(ctx, events, StreamEvent{Error: err})
		case done:
			send(ctx, events, StreamEvent{Done: true, Usage: usage})
		case ctx.Err() == nil:
			send(ctx, events, StreamEvent{Error: transient(errors.New(o.name + " stream ended before completion"))})
		}
	}()

	return events, nil
}

func (c openAIStreamResponse) usage() *Usage {
	u := c.Usage
	if u == nil && c.XGroq != nil {
		u = c.XGroq.Usage
	}
	if u == nil {
		return nil
	}
	return &Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}
