package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type OllamaProvider struct {
	host       string
	model      string
	httpClient *http.Client
}

func NewOllamaProvider(host, model string) *OllamaProvider {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaProvider{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: newHTTPClient(),
	}
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

func (o *OllamaProvider) Ping(ctx context.Context) error {
	return get(ctx, o.httpClient, "ollama", o.host+"/api/tags", nil)
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

func (r ollamaChatResponse) usage() *Usage {
	return &Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func (o *OllamaProvider) request(req *CompletionRequest, stream bool) ollamaChatRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}
}

func (o *OllamaProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := post(ctx, o.httpClient, "ollama", o.host+"/api/chat", nil, o.request(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ollamaResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", ollamaResp.Error)
	}

	return &CompletionResponse{
		Content:      ollamaResp.Message.Content,
		Model:        ollamaResp.Model,
		FinishReason: ollamaResp.DoneReason,
		Usage:        *ollamaResp.usage(),
	}, nil
}

func (o *OllamaProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := post(ctx, o.httpClient, "ollama", o.host+"/api/chat", nil, o.request(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		// ollama streams newline-delimited JSON, not SSE
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				send(ctx, events, StreamEvent{Error: err})
				return
			}
			if chunk.Error != "" {
				send(ctx, events, StreamEvent{Error: errors.New("ollama: " + chunk.Error)})
				return
			}

			if chunk.Message.Content != "" {
				if !send(ctx, events, StreamEvent{Chunk: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				send(ctx, events, StreamEvent{Done: true, Usage: chunk.usage()})
				return
			}
		}

		err := scanner.Err()
		if err == nil && ctx.Err() == nil {
			err = transient(errors.New("ollama stream ended before completion"))
		}
		if err != nil {
			send(ctx, events, StreamEvent{Error: err})
		}
	}()

	return events, nil
}

func convertMessages(msgs []Message) []ollamaMessage {
	result := make([]ollamaMessage, len(msgs))
	for i, m := range msgs {
		result[i] = ollamaMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return result
}
