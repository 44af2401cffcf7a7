// Package cli holds the intake command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// App holds what the commands need from the process.
type App struct {
	Version string

	// Build wires a runtime from the global options.
	Build func(opts Options) (*Runtime, error)

	// IsInteractive reports whether stdin is a terminal.
	IsInteractive func() bool
}

// NewRootCmd creates the top-level "intake" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "intake",
		Short:         "Turn a problem statement into a complete inspection project record",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.IsInteractive != nil && app.IsInteractive() {
				return runChat(cmd, app, opts)
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/intake/config.yaml)")
	root.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newChatCmd(app, opts),
		newRunCmd(app, opts),
		newServeCmd(app, opts),
		newSetupCmd(opts),
		newExportsCmd(opts),
		newSummarizeCmd(app, opts),
		newVersionCmd(app),
	)

	return root
}

// runtime builds the runtime and starts its metrics endpoint.
func (app *App) runtime(cmd *cobra.Command, opts Options) (*Runtime, error) {
	build := app.Build
	if build == nil {
		build = Build
	}
	rt, err := build(opts)
	if err != nil {
		return nil, err
	}
	rt.ServeMetrics(cmd.Context())
	return rt, nil
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.Version)
		},
	}
}
