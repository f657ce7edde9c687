package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// withTempStore points YAPDEMO_DB_PATH at a fresh file under a
// per-test temp directory so each test exercises its own store.
func withTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("YAPDEMO_DB_PATH", filepath.Join(t.TempDir(), "yap.db"))
	t.Setenv("YAPDEMO_REQUEST_ID", "")
}

// runCmd executes cmd with args against a background context, capturing
// everything it writes to stdout.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (stdout string, err error) {
	t.Helper()
	cmd.SetArgs(args)
	stdout = captureStdout(t, func() {
		err = cmd.ExecuteContext(context.Background())
	})
	return stdout, err
}

func requireSuccess(t *testing.T, stdout string) {
	t.Helper()
	require.Contains(t, stdout, `"success":true`)
}
