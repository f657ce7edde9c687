package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewEnumerateCmd creates the enumerate command: a single read-only
// transaction that streams every key/value pair in a collection.
func NewEnumerateCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "enumerate <collection>",
		Aliases: []string{"ls", "list"},
		Short:   "List the key/value pairs in a collection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]

			type entry struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			var entries []entry

			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				err := conn.Read(cmd.Context(), func(tx *yap.Transaction) error {
					return tx.Enumerate(collection, func(key string, value []byte) bool {
						entries = append(entries, entry{Key: key, Value: string(value)})
						return limit <= 0 || len(entries) < limit
					})
				})
				if err != nil {
					return err
				}

				type resp struct {
					Collection string  `json:"collection"`
					Entries    []entry `json:"entries"`
				}
				return output.PrintSuccess(resp{Collection: collection, Entries: entries})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many entries (0 = no limit)")
	return cmd
}
