package cli

import (
	"encoding/json"
	"fmt"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/export"
	"github.com/spf13/cobra"
)

func newExportsCmd(opts *Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "exports [export-id]",
		Short: "List records exported to the local database",
		Long: "Without arguments, lists export IDs newest first.\n" +
			"With an export ID, prints the fields of that export.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			path, err := cfg.DatabasePath()
			if err != nil {
				return err
			}
			db, err := export.OpenDB(path)
			if err != nil {
				return err
			}
			defer db.Close()
			sink := export.NewSQLiteSink(db)
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			if len(args) == 0 {
				ids, err := sink.Exports(ctx)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(out, "No exports yet.")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			records, err := sink.List(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no export %s", args[0])
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{r.Category, r.SubCategory, r.Answer}
			}
			fmt.Fprint(out, renderTable([]string{"Category", "Sub-category", "User Answer"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	return cmd
}
