package cli

import (
	"github.com/maswad702/Database-Extraction-Chatbot/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App, opts *Options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve intake conversations over a JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.runtime(cmd, *opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := server.New(rt.Engine, rt.Extractor, rt.Log.Named("server"))
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	return cmd
}
