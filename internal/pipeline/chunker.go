package pipeline

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a piece of source text small enough for one fill call.
type Chunk struct {
	ID      int
	Content string
}

// ChunkDocument splits content on paragraph breaks into chunks of at most
// maxTokens as measured by count. A paragraph longer than the budget is split
// on line, then word, boundaries.
func ChunkDocument(content string, maxTokens int, count func(string) int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = 6000
	}
	if count == nil {
		count = EstimateTokens
	}

	var chunks []Chunk
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{ID: len(chunks), Content: current.String()})
		current.Reset()
		currentTokens = 0
	}

	for _, para := range splitOversized(strings.Split(content, "\n\n"), maxTokens, count) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		n := count(para)
		if currentTokens+n > maxTokens && current.Len() > 0 {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += n
	}
	flush()

	return chunks
}

func splitOversized(parts []string, maxTokens int, count func(string) int) []string {
	var out []string
	for _, p := range parts {
		if count(p) <= maxTokens {
			out = append(out, p)
			continue
		}
		if lines := strings.Split(p, "\n"); len(lines) > 1 {
			out = append(out, splitOversized(lines, maxTokens, count)...)
			continue
		}

		var b strings.Builder
		for _, w := range strings.Fields(p) {
			if b.Len() > 0 && count(b.String()+" "+w) > maxTokens {
				out = append(out, b.String())
				b.Reset()
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w)
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}

// EstimateTokens estimates token count (rough: 4 chars per token)
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}
