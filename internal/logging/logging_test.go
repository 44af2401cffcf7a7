package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "intake.log")

	logger, err := New(config.LogConfig{Level: "info", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("conversation started", zap.String("conversation", "c1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conversation":"c1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
