package config

import "strings"

// Model is one selectable model and the window the populator can fill.
type Model struct {
	ID            string
	ContextTokens int
}

// ProviderInfo describes a provider offered by `intake setup`.
type ProviderInfo struct {
	ID           string
	Name         string
	Description  string
	NeedsAPIKey  bool
	SignupURL    string
	Models       []Model
	DefaultModel string
}

// Providers is ordered as shown in setup. Groq comes first since the intake
// prompts were tuned on its Llama models.
var Providers = []ProviderInfo{
	{
		ID:          "groq",
		Name:        "Groq",
		Description: "Recommended, fast enough for one question per turn",
		NeedsAPIKey: true,
		SignupURL:   "https://console.groq.com/keys",
		Models: []Model{
			{"llama-3.1-70b-versatile", 128000},
			{"llama-3.3-70b-versatile", 128000},
			{"llama-3.1-8b-instant", 128000},
		},
		DefaultModel: "llama-3.1-70b-versatile",
	},
	{
		ID:          "ollama",
		Name:        "Ollama",
		Description: "Runs locally, customer documents stay on this machine",
		Models: []Model{
			{"llama3.1:8b", 128000},
			{"llama3.1:70b", 128000},
			{"qwen2.5:7b", 32000},
		},
		DefaultModel: "llama3.1:8b",
	},
	{
		ID:          "openai",
		Name:        "OpenAI",
		Description: "Most reliable JSON replies",
		NeedsAPIKey: true,
		SignupURL:   "https://platform.openai.com/api-keys",
		Models: []Model{
			{"gpt-4o-mini", 128000},
			{"gpt-4o", 128000},
		},
		DefaultModel: "gpt-4o-mini",
	},
	{
		ID:          "anthropic",
		Name:        "Anthropic",
		Description: "Long documents, best executive summaries",
		NeedsAPIKey: true,
		SignupURL:   "https://console.anthropic.com/",
		Models: []Model{
			{"claude-3-5-sonnet-20241022", 200000},
			{"claude-3-5-haiku-20241022", 200000},
		},
		DefaultModel: "claude-3-5-sonnet-20241022",
	},
	{
		ID:          "openrouter",
		Name:        "OpenRouter",
		Description: "One key for many hosted models",
		NeedsAPIKey: true,
		SignupURL:   "https://openrouter.ai/keys",
		Models: []Model{
			{"meta-llama/llama-3.1-70b-instruct", 128000},
			{"openai/gpt-4o", 128000},
			{"anthropic/claude-3.5-sonnet", 200000},
		},
		DefaultModel: "meta-llama/llama-3.1-70b-instruct",
	},
	{
		ID:          "custom",
		Name:        "Custom",
		Description: "Any OpenAI-compatible endpoint, e.g. an on-prem gateway",
	},
}

// GetProvider returns the catalog entry for id, or nil.
func GetProvider(id string) *ProviderInfo {
	for _, p := range Providers {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// ContextWindow returns the context size of model. Models missing from the
// catalogue are guessed from their family name, then default to 8k.
func ContextWindow(model string) int {
	for _, p := range Providers {
		for _, m := range p.Models {
			if m.ID == model {
				return m.ContextTokens
			}
		}
	}

	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "claude"):
		return 200000
	case strings.Contains(model, "gpt-4o"), strings.Contains(model, "gpt-4-turbo"):
		return 128000
	case strings.Contains(model, "llama-3"), strings.Contains(model, "llama3"):
		return 128000
	case strings.Contains(model, "mixtral"), strings.Contains(model, "qwen"), strings.Contains(model, "mistral"):
		return 32000
	}
	return 8000
}
