package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yap/internal/kvstore"
	"github.com/dotcommander/yap/internal/output"
	"github.com/dotcommander/yap/pkg/yap"
)

// NewTagCmd creates the tag command group: organizational metadata
// layered on top of the engine's opaque (collection, key) contract,
// stored in this subclass's own kv_tags table rather than yap_store.
func NewTagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Group collections under human-readable labels",
	}
	cmd.AddCommand(newTagAddCmd())
	cmd.AddCommand(newTagListCmd())
	return cmd
}

func newTagAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <collection> <tag>",
		Short: "Tag a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, tag := args[0], args[1]
			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				if err := kvstore.Tag(db.Pool(), collection, tag); err != nil {
					return err
				}

				type resp struct {
					Collection string `json:"collection"`
					Tag        string `json:"tag"`
				}
				return output.PrintSuccess(resp{Collection: collection, Tag: tag})
			})
		},
	}
}

func newTagListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "List the tags recorded against a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			return withStore(cmd.Context(), func(db *yap.Database, conn *yap.Connection) error {
				tags, err := kvstore.TagsFor(db.Pool(), collection)
				if err != nil {
					return err
				}

				type resp struct {
					Collection string   `json:"collection"`
					Tags       []string `json:"tags"`
				}
				return output.PrintSuccess(resp{Collection: collection, Tags: tags})
			})
		},
	}
}
