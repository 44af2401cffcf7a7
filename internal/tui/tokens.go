package tui

import (
	"fmt"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
)

// contextUsage describes how much of the model window the document fills.
func contextUsage(tokens int, model string) string {
	limit := config.ContextWindow(model)
	pct := float64(tokens) / float64(limit) * 100
	return fmt.Sprintf("%.1fk/%.0fk ctx (%.0f%%)", float64(tokens)/1000, float64(limit)/1000, pct)
}
