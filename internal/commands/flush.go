package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewFlushCmd creates the flush command: drops this connection's
// in-memory caches under memory pressure. Level 1 drops the object
// cache, level 2 or higher drops both caches.
func NewFlushCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Drop in-memory caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				if err := conn.FlushMemory(cmd.Context(), level); err != nil {
					return err
				}

				type resp struct {
					Level int `json:"level"`
				}
				return output.PrintSuccess(resp{Level: level})
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 2, "Flush level: 1 = object cache, 2 = object + metadata caches")
	return cmd
}
