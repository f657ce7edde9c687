package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/app"
	"github.com/dotcommander/yap/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "yapdemo",
		Short:         "Demo CLI for the yap embedded key/value store",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().String("request-id", "", "Diagnostic request ID echoed by put (default: $YAPDEMO_REQUEST_ID)")
	root.Flags().BoolP("version", "v", false, "version for yapdemo")

	root.AddCommand(NewPutCmd())
	root.AddCommand(NewGetCmd())
	root.AddCommand(NewRemoveCmd())
	root.AddCommand(NewEnumerateCmd())
	root.AddCommand(NewTagCmd())
	root.AddCommand(NewStatsCmd())
	root.AddCommand(NewCheckpointCmd())
	root.AddCommand(NewFlushCmd())
	root.AddCommand(NewDBCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
