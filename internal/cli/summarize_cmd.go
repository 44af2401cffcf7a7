package cli

import (
	"fmt"
	"os"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"github.com/spf13/cobra"
)

func newSummarizeCmd(app *App, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <record.json>",
		Short: "Stream an executive summary for a completed record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			record, err := template.Parse(data)
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			rt, err := app.runtime(cmd, *opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			events, err := rt.Writer.Stream(cmd.Context(), record)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ev := range events {
				if ev.Error != nil {
					return ev.Error
				}
				fmt.Fprint(out, ev.Chunk)
				if ev.Done {
					break
				}
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
