package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Fields [][]string `json:"fields"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want [][]string
	}{
		{"clean", `{"fields":[["Customer","Company Name"]]}`, [][]string{{"Customer", "Company Name"}}},
		{"fenced", "```json\n{\"fields\":[[\"A\"]]}\n```", [][]string{{"A"}}},
		{"surrounding text", "Here you go:\n{\"fields\":[[\"A\",\"B\"]]}\nLet me know!", [][]string{{"A", "B"}}},
		{"braces in strings", `{"fields":[["a {weird} key"]]}`, [][]string{{"a {weird} key"}}},
		{"comments", "{\n// the only field\n\"fields\":[[\"A\"]] /* done */\n}", [][]string{{"A"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON[testPayload](tt.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Fields)
		})
	}
}

func TestExtractJSON_Malformed(t *testing.T) {
	for _, raw := range []string{
		"I could not find anything.",
		`{"fields": [["A"],}`,
		`{"fields": "not a list"}`,
		`{"fields": [["A"]]`,
	} {
		_, err := ExtractJSON[testPayload](raw, nil)
		assert.ErrorIs(t, err, ErrMalformedOutput, raw)
	}
}

func TestExtractJSON_Validator(t *testing.T) {
	nonEmpty := func(p testPayload) error {
		if len(p.Fields) == 0 {
			return errors.New("no fields")
		}
		return nil
	}

	_, err := ExtractJSON(`{"fields":[]}`, nonEmpty)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.Contains(t, err.Error(), "no fields")

	got, err := ExtractJSON(`{"fields":[["A"]]}`, nonEmpty)
	require.NoError(t, err)
	assert.Len(t, got.Fields, 1)
}

// scriptedGenerator replays canned replies and records the prompts it saw.
type scriptedGenerator struct {
	replies []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, req.User)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i >= len(g.replies) {
		return g.replies[len(g.replies)-1], nil
	}
	return g.replies[i], nil
}

func TestGenerateJSON_ReasksOnMalformedOutput(t *testing.T) {
	g := &scriptedGenerator{replies: []string{"sorry, no", `{"fields":[["A"]]}`}}

	got, err := GenerateJSON[testPayload](context.Background(), g, GenerateRequest{User: "prompt"}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}}, got.Fields)

	require.Len(t, g.prompts, 2)
	assert.Equal(t, "prompt", g.prompts[0])
	assert.True(t, strings.HasPrefix(g.prompts[1], "prompt\n\nYour previous reply could not be used"))
}

func TestGenerateJSON_Exhausted(t *testing.T) {
	g := &scriptedGenerator{replies: []string{"nope"}}

	_, err := GenerateJSON[testPayload](context.Background(), g, GenerateRequest{User: "p"}, 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.True(t, IsMalformed(err))
	assert.Len(t, g.prompts, 3)
}

func TestGenerateJSON_TransientIsNotReasked(t *testing.T) {
	g := &scriptedGenerator{
		replies: []string{`{"fields":[]}`},
		errs:    []error{transient(errors.New("503"))},
	}

	_, err := GenerateJSON[testPayload](context.Background(), g, GenerateRequest{}, 3, nil)
	assert.ErrorIs(t, err, ErrTransientService)
	assert.Len(t, g.prompts, 1)
}
