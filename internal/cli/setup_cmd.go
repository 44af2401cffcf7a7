package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/config"
	"github.com/spf13/cobra"
)

func newSetupCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Choose the LLM provider, model and export sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}

			answers := answersFrom(cfg)
			if err := providerForm(&answers.Provider).Run(); err != nil {
				return ignoreAbort(err)
			}
			info := config.GetProvider(answers.Provider)
			if info == nil {
				return fmt.Errorf("unknown provider %q", answers.Provider)
			}
			if answers.Model == "" || cfg.Provider != answers.Provider {
				answers.Model = info.DefaultModel
			}
			if err := detailsForm(info, &answers).Run(); err != nil {
				return ignoreAbort(err)
			}

			answers.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}
}

// setupAnswers collects what the setup forms ask for.
type setupAnswers struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Sink     string

	AirtableBase string
	AirtableKey  string
}

func answersFrom(cfg *config.Config) setupAnswers {
	return setupAnswers{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Sink:     cfg.Export.Sink,

		AirtableBase: cfg.Export.Airtable.BaseID,
		AirtableKey:  cfg.Export.Airtable.APIKey,
	}
}

func (a setupAnswers) apply(cfg *config.Config) {
	if a.Provider != cfg.Provider {
		cfg.APIKey = ""
		cfg.BaseURL = ""
	}
	cfg.Provider = a.Provider
	cfg.Model = a.Model
	if a.APIKey != "" {
		cfg.APIKey = a.APIKey
	}
	if a.BaseURL != "" {
		cfg.BaseURL = a.BaseURL
	}
	if a.Sink != "" {
		cfg.Export.Sink = a.Sink
	}
	if a.Sink == "airtable" {
		cfg.Export.Airtable.BaseID = a.AirtableBase
		cfg.Export.Airtable.APIKey = a.AirtableKey
	}
}

func providerForm(value *string) *huh.Form {
	options := make([]huh.Option[string], len(config.Providers))
	for i, p := range config.Providers {
		options[i] = huh.NewOption(fmt.Sprintf("%-12s %s", p.Name, p.Description), p.ID)
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which LLM provider?").
				Options(options...).
				Value(value),
		),
	).WithTheme(huh.ThemeCharm()).WithShowHelp(false)
}

func detailsForm(info *config.ProviderInfo, a *setupAnswers) *huh.Form {
	var fields []huh.Field

	if info.NeedsAPIKey {
		fields = append(fields, huh.NewInput().
			Title(info.Name+" API key").
			Description(info.SignupURL).
			EchoMode(huh.EchoModePassword).
			Value(&a.APIKey).
			Validate(required("an API key")))
	}
	if info.ID == "custom" {
		fields = append(fields, huh.NewInput().
			Title("Base URL").
			Placeholder("http://localhost:8000/v1").
			Value(&a.BaseURL))
	}

	if len(info.Models) > 0 {
		models := make([]huh.Option[string], len(info.Models))
		for i, m := range info.Models {
			models[i] = huh.NewOption(fmt.Sprintf("%s (%dk context)", m.ID, m.ContextTokens/1000), m.ID)
		}
		fields = append(fields, huh.NewSelect[string]().
			Title("Model").
			Options(models...).
			Value(&a.Model))
	} else {
		fields = append(fields, huh.NewInput().
			Title("Model").
			Value(&a.Model))
	}

	fields = append(fields, huh.NewSelect[string]().
		Title("Where should finished records go?").
		Options(
			huh.NewOption("Local SQLite database", "sqlite"),
			huh.NewOption("Airtable", "airtable"),
			huh.NewOption("Nowhere", "none"),
		).
		Value(&a.Sink))

	airtable := huh.NewGroup(
		huh.NewInput().
			Title("Airtable base ID").
			Value(&a.AirtableBase).
			Validate(required("a base ID")),
		huh.NewInput().
			Title("Airtable API key").
			EchoMode(huh.EchoModePassword).
			Value(&a.AirtableKey).
			Validate(required("an API key")),
	).WithHideFunc(func() bool { return a.Sink != "airtable" })

	return huh.NewForm(huh.NewGroup(fields...), airtable).
		WithTheme(huh.ThemeCharm()).
		WithShowHelp(false)
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func ignoreAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}

// loadConfig reads the config file without validating it or applying the
// environment, for commands that do not talk to a model.
func loadConfig(path string) (string, *config.Config, error) {
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return "", nil, err
		}
		path = p
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return "", nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return path, cfg, nil
}
