package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/tui"
	"github.com/spf13/cobra"
)

func newChatCmd(app *App, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive intake chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, app, opts)
		},
	}
}

func runChat(cmd *cobra.Command, app *App, opts *Options) error {
	o := *opts
	o.Interactive = true
	rt, err := app.runtime(cmd, o)
	if err != nil {
		return err
	}
	defer rt.Close()

	model := tui.NewApp(rt.Engine, rt.Extractor, rt.Config.Model, rt.Log.Named("tui"))
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	model.SetProgram(p)

	_, err = p.Run()
	return err
}
