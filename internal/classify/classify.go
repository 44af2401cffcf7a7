// Package classify sorts a problem description into inspection categories.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/prompts"
	"go.uber.org/zap"
)

// Choice is one inspection category the classifier may pick.
type Choice struct {
	Name string
	Hint string
}

// Choices is the fixed category list. Names match the top-level keys of the
// observation template.
var Choices = []Choice{
	{"2D Measurement", "Diameter, thickness, etc."},
	{"Anomaly Detection", "Scratches, dents, corrosion"},
	{"Print Defect", "Smudging, misalignment"},
	{"Counting", "Individual components, features"},
	{"3D Measurement", "Volume, surface area"},
	{"Presence/Absence", "Missing components, color deviations"},
	{"OCR", "Optical Character Recognition, font types and sizes to be recognized, reading speed and accuracy requirements"},
	{"Code Reading", "Types of codes to read (QR, Barcode)"},
	{"Mismatch Detection", "Specific features to compare for mismatches, component shapes, color mismatches"},
	{"Classification", "Categories of classes to be identified, features defining each class"},
	{"Assembly Verification", "Checklist of components or features to verify, sequence of assembly to be followed"},
	{"Color Verification", "Color standards or samples to match"},
}

// Classification is the set of categories that apply to a document.
type Classification struct {
	Choices []string
}

func (c Classification) String() string {
	if len(c.Choices) == 0 {
		return "Unclassified"
	}
	return strings.Join(c.Choices, ", ")
}

func (c Classification) Empty() bool {
	return len(c.Choices) == 0
}

type reply struct {
	Choices []string `json:"choices"`
}

// Classifier asks the model which choices apply.
type Classifier struct {
	gen      llm.Generator
	attempts int
	log      *zap.Logger
}

func NewClassifier(gen llm.Generator, attempts int, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{gen: gen, attempts: attempts, log: log}
}

// Classify returns the choices that apply to text. Names the model invents
// are dropped; an empty result is valid.
func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	req := llm.GenerateRequest{
		Task:   llm.TaskClassify,
		System: prompts.Classify(choiceLines()),
		User:   text,
	}

	r, err := llm.GenerateJSON[reply](ctx, c.gen, req, c.attempts, nil)
	if err != nil {
		return Classification{}, fmt.Errorf("classifying document: %w", err)
	}

	known, unknown := Normalize(r.Choices)
	if len(unknown) > 0 {
		c.log.Warn("dropping unknown classification choices", zap.Strings("choices", unknown))
	}
	c.log.Info("classified document", zap.Strings("choices", known))
	return Classification{Choices: known}, nil
}

// Normalize maps names onto Choices case-insensitively, keeping the first
// occurrence of each. Names that match nothing are returned separately.
func Normalize(names []string) (known, unknown []string) {
	seen := make(map[string]bool)
	for _, name := range names {
		canonical, ok := lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		known = append(known, canonical)
	}
	return known, unknown
}

func lookup(name string) (string, bool) {
	// models sometimes echo the hint: "OCR: Optical Character Recognition"
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	for _, c := range Choices {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

func choiceLines() []string {
	lines := make([]string, len(Choices))
	for i, c := range Choices {
		lines[i] = c.Name + ": " + c.Hint
	}
	return lines
}
