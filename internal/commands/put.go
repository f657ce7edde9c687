package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewPutCmd creates the put command: a single read-write transaction
// that sets one key.
func NewPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <collection> <key> <value>",
		Short: "Store a value at collection/key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, key, value := args[0], args[1], args[2]
			requestID := requestIDOrGenerated(cmd)

			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				err := yap.RetryBusy(cmd.Context(), func() error {
					return conn.ReadWrite(cmd.Context(), func(tx *yap.Transaction) error {
						return tx.Set(collection, key, []byte(value))
					})
				})
				if err != nil {
					return err
				}

				type resp struct {
					Collection string `json:"collection"`
					Key        string `json:"key"`
					RequestID  string `json:"request_id"`
				}
				return output.PrintSuccess(resp{Collection: collection, Key: key, RequestID: requestID})
			})
		},
	}
	return cmd
}
