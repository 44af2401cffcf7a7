package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`

	Templates   TemplatesConfig `yaml:"templates"`
	Intake      IntakeConfig    `yaml:"intake"`
	Retry       RetryConfig     `yaml:"retry"`
	Export      ExportConfig    `yaml:"export"`
	Log         LogConfig       `yaml:"log"`
	MetricsAddr string          `yaml:"metrics_addr,omitempty"`
}

// TemplatesConfig points at template schema files. Empty paths use the
// built-in schemas.
type TemplatesConfig struct {
	Observation       string `yaml:"observation,omitempty"`
	BusinessObjective string `yaml:"business_objective,omitempty"`
}

type IntakeConfig struct {
	MaxQuestions       int `yaml:"max_questions"`
	MaxConflictRounds  int `yaml:"max_conflict_rounds"`
	StructuredAttempts int `yaml:"structured_attempts"`
	SynthesisAttempts  int `yaml:"synthesis_attempts"`
}

type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

type ExportConfig struct {
	// Sink is one of "sqlite", "airtable" or "none".
	Sink      string         `yaml:"sink"`
	BatchSize int            `yaml:"batch_size"`
	DBPath    string         `yaml:"db_path,omitempty"`
	Airtable  AirtableConfig `yaml:"airtable,omitempty"`
}

type AirtableConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	BaseID  string `yaml:"base_id,omitempty"`
	Table   string `yaml:"table,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: "groq",
		Model:    "llama-3.1-70b-versatile",
		Intake: IntakeConfig{
			MaxQuestions:       15,
			MaxConflictRounds:  1,
			StructuredAttempts: 3,
			SynthesisAttempts:  3,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Export: ExportConfig{
			Sink:      "sqlite",
			BatchSize: 10,
			Airtable: AirtableConfig{
				BaseURL: "https://api.airtable.com/v0",
				Table:   "Observations",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "intake"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config file at the default location. It returns nil, nil when
// no file exists yet.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, so a partial file only overrides what
// it names. A missing file returns nil, nil.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads path (or the default location when path is empty), falls back
// to defaults, applies environment overrides and validates the result.
func Resolve(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg, err = Load()
	} else {
		cfg, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with INTAKE_* variables. GROQ_API_KEY and
// AIRTABLE_KEY are honored for compatibility with existing deployments.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("INTAKE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("INTAKE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("INTAKE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("INTAKE_API_KEY"); v != "" {
		c.APIKey = v
	} else if v := os.Getenv("GROQ_API_KEY"); v != "" && c.APIKey == "" && c.Provider == "groq" {
		c.APIKey = v
	}
	if v := os.Getenv("AIRTABLE_KEY"); v != "" {
		c.Export.Airtable.APIKey = v
	}
	if v := os.Getenv("INTAKE_DB"); v != "" {
		c.Export.DBPath = v
	}
	if v := os.Getenv("INTAKE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("INTAKE_MAX_CONFLICT_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Intake.MaxConflictRounds = n
		}
	}
	if v := os.Getenv("INTAKE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if GetProvider(c.Provider) == nil {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	} else if p := GetProvider(c.Provider); p.NeedsAPIKey && c.APIKey == "" {
		errs = append(errs, fmt.Errorf("provider %s requires an API key", c.Provider))
	}
	if c.Provider == "custom" && c.BaseURL == "" {
		errs = append(errs, errors.New("custom provider requires base_url"))
	}

	if c.Intake.MaxQuestions <= 0 {
		errs = append(errs, errors.New("intake.max_questions must be positive"))
	}
	if c.Intake.MaxConflictRounds < 0 {
		errs = append(errs, errors.New("intake.max_conflict_rounds must not be negative"))
	}
	if c.Intake.StructuredAttempts <= 0 {
		errs = append(errs, errors.New("intake.structured_attempts must be positive"))
	}
	if c.Intake.SynthesisAttempts <= 0 {
		errs = append(errs, errors.New("intake.synthesis_attempts must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	if c.Retry.BackoffFactor < 1 {
		errs = append(errs, errors.New("retry.backoff_factor must be at least 1"))
	}

	switch c.Export.Sink {
	case "sqlite", "none":
	case "airtable":
		if c.Export.Airtable.BaseID == "" || c.Export.Airtable.APIKey == "" {
			errs = append(errs, errors.New("airtable export requires base_id and api_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown export sink %q", c.Export.Sink))
	}
	if c.Export.BatchSize <= 0 {
		errs = append(errs, errors.New("export.batch_size must be positive"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// DatabasePath returns the SQLite export path, defaulting next to the config file.
func (c *Config) DatabasePath() (string, error) {
	if c.Export.DBPath != "" {
		return c.Export.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "intake.db"), nil
}

func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
