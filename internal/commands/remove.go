package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewRemoveCmd creates the remove command: a single read-write
// transaction that deletes one key, or every key in a collection
// when --all is set.
func NewRemoveCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "remove <collection> [key]",
		Short: "Remove a key, or every key in a collection with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			if all {
				return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
					err := yap.RetryBusy(cmd.Context(), func() error {
						return conn.ReadWrite(cmd.Context(), func(tx *yap.Transaction) error {
							return tx.RemoveAll(collection)
						})
					})
					if err != nil {
						return err
					}

					type resp struct {
						Collection string `json:"collection"`
					}
					return output.PrintSuccess(resp{Collection: collection})
				})
			}

			if len(args) != 2 {
				return cmdErr(fmt.Errorf("remove: a key argument is required unless --all is set"))
			}
			key := args[1]

			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				err := yap.RetryBusy(cmd.Context(), func() error {
					return conn.ReadWrite(cmd.Context(), func(tx *yap.Transaction) error {
						return tx.Remove(collection, key)
					})
				})
				if err != nil {
					return err
				}

				type resp struct {
					Collection string `json:"collection"`
					Key        string `json:"key"`
				}
				return output.PrintSuccess(resp{Collection: collection, Key: key})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every key in the collection")
	return cmd
}
