package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: ollama
model: qwen2.5:7b
intake:
  max_conflict_rounds: 2
retry:
  initial_delay: 2s
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "qwen2.5:7b", cfg.Model)
	assert.Equal(t, 2, cfg.Intake.MaxConflictRounds)
	assert.Equal(t, 15, cfg.Intake.MaxQuestions)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, "sqlite", cfg.Export.Sink)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: ["), 0o600))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "parsing")
}

func TestSaveFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.APIKey = "gsk-test"

	require.NoError(t, cfg.SaveFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("INTAKE_PROVIDER", "groq")
	t.Setenv("INTAKE_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("AIRTABLE_KEY", "pat-env")
	t.Setenv("INTAKE_MAX_CONFLICT_ROUNDS", "3")
	t.Setenv("INTAKE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "gsk-env", cfg.APIKey)
	assert.Equal(t, "pat-env", cfg.Export.Airtable.APIKey)
	assert.Equal(t, 3, cfg.Intake.MaxConflictRounds)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_IgnoresBadNumbers(t *testing.T) {
	t.Setenv("INTAKE_MAX_CONFLICT_ROUNDS", "-1")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, 1, cfg.Intake.MaxConflictRounds)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.APIKey = "gsk-test"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "acme" }, `unknown provider "acme"`},
		{"missing key", func(c *Config) { c.APIKey = "" }, "requires an API key"},
		{"custom without url", func(c *Config) { c.Provider = "custom" }, "custom provider requires base_url"},
		{"no questions", func(c *Config) { c.Intake.MaxQuestions = 0 }, "max_questions"},
		{"negative rounds", func(c *Config) { c.Intake.MaxConflictRounds = -1 }, "max_conflict_rounds"},
		{"slow backoff", func(c *Config) { c.Retry.BackoffFactor = 0.5 }, "backoff_factor"},
		{"airtable without base", func(c *Config) { c.Export.Sink = "airtable" }, "base_id and api_key"},
		{"unknown sink", func(c *Config) { c.Export.Sink = "s3" }, `unknown export sink "s3"`},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, `unknown log level "loud"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Intake.MaxQuestions = 0
	cfg.Export.BatchSize = 0

	err := cfg.Validate()
	assert.ErrorContains(t, err, "requires an API key")
	assert.ErrorContains(t, err, "max_questions")
	assert.ErrorContains(t, err, "batch_size")
}

func TestGetProvider(t *testing.T) {
	p := GetProvider("anthropic")
	require.NotNil(t, p)
	assert.True(t, p.NeedsAPIKey)
	assert.Nil(t, GetProvider("nope"))
}

func TestProviders_DefaultModelIsListed(t *testing.T) {
	for _, p := range Providers {
		if len(p.Models) == 0 {
			continue
		}
		var ids []string
		for _, m := range p.Models {
			ids = append(ids, m.ID)
			assert.Positive(t, m.ContextTokens, m.ID)
		}
		assert.Contains(t, ids, p.DefaultModel, p.ID)
	}
	assert.Equal(t, DefaultConfig().Model, GetProvider(DefaultConfig().Provider).DefaultModel)
}

func TestContextWindow(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"claude-3-5-haiku-20241022", 200000},
		{"qwen2.5:7b", 32000},
		{"llama-3.2-90b-vision", 128000},
		{"mistral-large", 32000},
		{"something-else", 8000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContextWindow(tt.model), tt.model)
	}
}
