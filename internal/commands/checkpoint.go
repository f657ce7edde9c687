package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewCheckpointCmd creates the checkpoint command: forces a WAL
// checkpoint rather than waiting for the dedicated checkpoint
// worker's passive debounce.
func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Force a full WAL checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				if err := db.Checkpoint(cmd.Context()); err != nil {
					return err
				}

				type resp struct {
					Checkpointed bool `json:"checkpointed"`
				}
				return output.PrintSuccess(resp{Checkpointed: true})
			})
		},
	}
	return cmd
}
