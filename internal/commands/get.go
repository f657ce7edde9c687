package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewGetCmd creates the get command: a single read-only transaction
// that fetches one key.
func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <collection> <key>",
		Short: "Fetch the value at collection/key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, key := args[0], args[1]

			var (
				value []byte
				found bool
			)

			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				err := conn.Read(cmd.Context(), func(tx *yap.Transaction) error {
					v, ok, err := tx.Get(collection, key)
					value, found = v, ok
					return err
				})
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%s/%s: not found", collection, key)
				}

				type resp struct {
					Collection string `json:"collection"`
					Key        string `json:"key"`
					Value      string `json:"value"`
				}
				return output.PrintSuccess(resp{Collection: collection, Key: key, Value: string(value)})
			})
		},
	}
	return cmd
}
