package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewStatsCmd creates the stats command: a snapshot-lane-guarded
// read of the Database's live bookkeeping.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show connection, changeset, and checkpoint counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				stats, err := db.Stats(cmd.Context())
				if err != nil {
					return err
				}
				phases, err := db.ConnectionPhases(cmd.Context())
				if err != nil {
					return err
				}

				type resp struct {
					yap.Stats
					ConnectionPhases map[string]string `json:"connection_phases"`
				}
				return output.PrintSuccess(resp{Stats: stats, ConnectionPhases: phases})
			})
		},
	}
	return cmd
}
