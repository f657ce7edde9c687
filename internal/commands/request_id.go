package commands

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func resolveRequestID(cmd *cobra.Command) string {
	if v, err := cmd.Flags().GetString("request-id"); err == nil && v != "" {
		return v
	}
	return os.Getenv("YAPDEMO_REQUEST_ID")
}

// requestIDOrGenerated returns the request ID from flag/env, or a fresh
// one otherwise — request IDs here stamp diagnostic output, not an
// idempotency ledger (the engine's own commit protocol, not a
// client-supplied key, is what makes a write idempotent).
func requestIDOrGenerated(cmd *cobra.Command) string {
	if rid := resolveRequestID(cmd); rid != "" {
		return rid
	}
	return uuid.NewString()
}
