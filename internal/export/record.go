// Package export flattens finished records into rows and ships them to a sink.
package export

import (
	"strconv"
	"strings"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
)

// Labels that name the category of the object they sit in.
var categoryLabels = []string{"Observation type", "Category"}

// Record is one answered field as a flat row.
type Record struct {
	Category    string `json:"Category"`
	SubCategory string `json:"Sub-category"`
	Description string `json:"Description"`
	Answer      string `json:"User Answer"`
}

// Flatten lists every leaf of n as a Record in document order. The category
// is the nearest "Observation type" or "Category" label above the leaf,
// falling back to its top-level key; the sub-category is the rest of its path.
func Flatten(n template.Node) []Record {
	var out []Record
	flatten(n, nil, "", &out)
	return out
}

func flatten(n template.Node, at template.Path, category string, out *[]Record) {
	switch v := n.(type) {
	case *template.Leaf:
		if category == "" && len(at) > 0 {
			category = at[0]
		}
		sub := ""
		if len(at) > 1 {
			sub = strings.Join(at[1:], " / ")
		}
		*out = append(*out, Record{
			Category:    category,
			SubCategory: sub,
			Description: v.Description,
			Answer:      v.Answer,
		})
	case *template.Object:
		if label := objectLabel(v); label != "" {
			category = label
		}
		for _, f := range v.Fields {
			flatten(f.Value, at.Child(f.Name), category, out)
		}
	case *template.Sequence:
		for i, item := range v.Items {
			flatten(item, at.Child(strconv.Itoa(i)), category, out)
		}
	}
}

func objectLabel(o *template.Object) string {
	for _, name := range categoryLabels {
		if n, ok := o.Get(name); ok {
			if t, ok := n.(template.Text); ok && strings.TrimSpace(string(t)) != "" {
				return strings.TrimSpace(string(t))
			}
		}
	}
	return ""
}
