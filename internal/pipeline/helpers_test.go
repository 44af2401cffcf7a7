package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/stretchr/testify/require"
)

const (
	bizSchema = `{
  "Customer": {
    "Category": "Customer",
    "Company Name": {"Description": "Name of the customer company", "User Answer": "TBD"}
  }
}`

	obsSchema = `{
  "2D Measurement": {
    "Observation type": "2D Measurement",
    "Diameter": {"Description": "Nominal diameter with unit", "User Answer": "TBD"}
  },
  "OCR": {
    "Observation type": "OCR",
    "Font": {"Description": "Font to be read", "User Answer": "TBD"}
  }
}`
)

// scriptedGen answers by task from queued replies. The last reply of a task
// repeats; queued errors are returned first.
type scriptedGen struct {
	mu       sync.Mutex
	replies  map[llm.Task][]string
	errs     map[llm.Task][]error
	requests []llm.GenerateRequest
}

func newScripted() *scriptedGen {
	return &scriptedGen{
		replies: make(map[llm.Task][]string),
		errs:    make(map[llm.Task][]error),
	}
}

func (g *scriptedGen) on(task llm.Task, replies ...string) *scriptedGen {
	g.replies[task] = append(g.replies[task], replies...)
	return g
}

func (g *scriptedGen) failOnce(task llm.Task, err error) *scriptedGen {
	g.errs[task] = append(g.errs[task], err)
	return g
}

func (g *scriptedGen) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)

	if errs := g.errs[req.Task]; len(errs) > 0 {
		g.errs[req.Task] = errs[1:]
		return "", errs[0]
	}

	q := g.replies[req.Task]
	if len(q) == 0 {
		return "", fmt.Errorf("unexpected %s call", req.Task)
	}
	if len(q) > 1 {
		g.replies[req.Task] = q[1:]
	}
	return q[0], nil
}

func (g *scriptedGen) count(task llm.Task) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Task == task {
			n++
		}
	}
	return n
}

func (g *scriptedGen) last(task llm.Task) llm.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.requests) - 1; i >= 0; i-- {
		if g.requests[i].Task == task {
			return g.requests[i]
		}
	}
	return llm.GenerateRequest{}
}

func mustParse(t *testing.T, s string) template.Node {
	t.Helper()
	n, err := template.ParseString(s)
	require.NoError(t, err)
	return n
}

func named(t *testing.T, name, s string) template.Named {
	t.Helper()
	return template.Named{Name: name, Root: mustParse(t, s)}
}

func answerAt(t *testing.T, n template.Node, path ...string) string {
	t.Helper()
	leaf, ok := template.LeafAt(n, template.Path(path))
	require.True(t, ok, "no leaf at %v", path)
	return leaf.Answer
}

// leafTemplate builds an object of n TBD leaves named F00, F01, ...
func leafTemplate(n int) template.Node {
	obj := &template.Object{}
	for i := range n {
		obj.Fields = append(obj.Fields, template.Field{
			Name:  fmt.Sprintf("F%02d", i),
			Value: template.NewLeaf(fmt.Sprintf("field %d", i)),
		})
	}
	return obj
}
