package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaValidator checks a decoded value after extraction. It returns nil if
// the value is usable.
type SchemaValidator[T any] func(T) error

// ExtractJSON decodes the first JSON object in raw model output into T. It
// tolerates markdown fences, prose around the object and // comments.
func ExtractJSON[T any](raw string, validator SchemaValidator[T]) (T, error) {
	var zero T

	cleaned := stripCodeFences(raw)
	jsonStr := extractJSONBlock(cleaned)
	if jsonStr == "" {
		return zero, fmt.Errorf("%w: no JSON object found in response", ErrMalformedOutput)
	}
	jsonStr = stripJSONComments(jsonStr)

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if validator != nil {
		if err := validator(result); err != nil {
			return zero, fmt.Errorf("%w: validation failed: %v", ErrMalformedOutput, err)
		}
	}

	return result, nil
}

// GenerateJSON asks g for a JSON object and decodes it, re-asking up to
// attempts times when the reply does not decode. Transient failures are
// returned at once: g already retried them.
func GenerateJSON[T any](ctx context.Context, g Generator, req GenerateRequest, attempts int, validator SchemaValidator[T]) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = 1
	}

	user := req.User
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			req.User = user + "\n\nYour previous reply could not be used (" + lastErr.Error() +
				"). Reply with the JSON object only."
		}

		raw, err := g.Generate(ctx, req)
		if err != nil {
			return zero, err
		}

		v, err := ExtractJSON(raw, validator)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// IsMalformed reports whether err came from unusable model output.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

// stripCodeFences removes markdown code fence lines.
func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// extractJSONBlock finds the first balanced { ... } block in the text.
func extractJSONBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}

// stripJSONComments drops // and /* */ comments outside string values.
func stripJSONComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' && inString {
			b.WriteByte(c)
			escaped = true
			continue
		}
		if c == '"' {
			b.WriteByte(c)
			inString = !inString
			continue
		}
		if inString {
			b.WriteByte(c)
			continue
		}

		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i+1 < len(s) && s[i+1] != '\n' {
				i++
			}
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '*' {
			i += 2
			for i+1 < len(s) {
				if s[i] == '*' && s[i+1] == '/' {
					i++
					break
				}
				i++
			}
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}
