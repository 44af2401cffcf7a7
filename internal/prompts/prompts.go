package prompts

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed classify.md
var classify string

//go:embed prune.md
var Prune string

//go:embed fill.md
var Fill string

//go:embed questions.md
var questions string

//go:embed merge.md
var merge string

//go:embed summary.md
var Summary string

// Classify builds the classification system prompt for the given choice list,
// one "Name: hint" per entry.
func Classify(choices []string) string {
	return strings.ReplaceAll(strings.TrimSpace(classify), "{{choices}}", strings.Join(choices, "\n\n"))
}

// Questions builds the refinement system prompt. conflict selects the wording
// for fields whose answers disagree.
func Questions(conflict bool, max int) string {
	mode := "The fields are still unknown (TBD). Ask for the missing information."
	if conflict {
		mode = "The fields received contradicting answers (CONFLICT). Ask for the correct and precise information, mentioning that earlier answers disagreed."
	}
	s := strings.ReplaceAll(strings.TrimSpace(questions), "{{mode}}", mode)
	return strings.ReplaceAll(s, "{{max}}", strconv.Itoa(max))
}

// Merge builds the answer merge system prompt.
func Merge(conflict bool) string {
	mode := "The fields marked TBD are still unknown. Fill them from the answers. If an answer contradicts a field that already has a value, report the new value too."
	if conflict {
		mode = "The fields marked CONFLICT received contradicting answers earlier. The customer has now clarified them; report the clarified value."
	}
	return strings.ReplaceAll(strings.TrimSpace(merge), "{{mode}}", mode)
}

// PruneUser is the user turn for template pruning.
func PruneUser(templateJSON, classification, text string) string {
	return fmt.Sprintf("TEMPLATE:\n%s\n\nCLASSIFICATION:\n%s\n\nTEXT:\n%s", templateJSON, classification, text)
}

// FillUser is the user turn for template filling.
func FillUser(fieldsJSON, text string) string {
	return fmt.Sprintf("FIELDS:\n%s\n\nTEXT:\n%s", fieldsJSON, text)
}

// MergeUser is the user turn for answer merging.
func MergeUser(fieldsJSON string, pairs []string) string {
	return fmt.Sprintf("FIELDS:\n%s\n\nANSWERS:\n%s", fieldsJSON, strings.Join(pairs, "\n"))
}
