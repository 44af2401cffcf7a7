package llm

import (
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes. Providers that do not report usage are
// metered with it too. Every model is approximated with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the number of tokens in text, falling back to four characters
// per token when no codec is available.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}
