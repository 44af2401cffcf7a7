package llm

import (
	"fmt"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
)

// NewProvider creates a provider from config
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model), nil

	case "groq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("groq requires an API key")
		}
		return NewGroqProvider(cfg.APIKey, cfg.Model), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai requires an API key")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model), nil

	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic requires an API key")
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.Model), nil

	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter requires an API key")
		}
		return NewOpenRouterProvider(cfg.APIKey, cfg.Model), nil

	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires base_url")
		}
		return NewCustomProvider(cfg.BaseURL, cfg.APIKey, cfg.Model), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// RetryFromConfig maps the retry section onto a policy.
func RetryFromConfig(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.InitialDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: c.BackoffFactor,
		Jitter:        c.Jitter,
	}
}
