package yap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFailedWriteRollsBackAndLeavesNoTrace drives spec.md §7's
// automatic-rollback rule: a write that fails mid-transaction (here, a
// NOT NULL violation from a nil value) must roll back cleanly, surface
// the underlying error to the caller as CommitFailed — not Corrupt,
// since an ordinary constraint violation is a caller mistake, not an
// invariant violation that should take the whole Database down — and
// leave no committed changeset or persisted row behind.
func TestFailedWriteRollsBackAndLeavesNoTrace(t *testing.T) {
	db := openTestDB(t)
	conn := openTestConn(t, db)
	ctx := context.Background()

	statsBefore, err := db.Stats(ctx)
	require.NoError(t, err)

	err = conn.ReadWrite(ctx, func(tx *Transaction) error {
		return tx.Set("accounts", "balance", nil)
	})
	require.Error(t, err)
	require.True(t, asYapErrorKind(err, KindCommitFailed))

	statsAfter, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, statsBefore.CommittedCount, statsAfter.CommittedCount)

	require.NoError(t, conn.Read(ctx, func(tx *Transaction) error {
		_, ok, err := tx.Get("accounts", "balance")
		require.False(t, ok)
		return err
	}))
}

// TestFailedWriteDoesNotAdvanceWatermark confirms a rolled-back write
// never updates lastWriteTimestamp: a later, successful write from a
// sibling Connection must be the one observed, not anything from the
// failed attempt.
func TestFailedWriteDoesNotAdvanceWatermark(t *testing.T) {
	db := openTestDB(t)
	connA := openTestConn(t, db)
	connB := openTestConn(t, db)
	ctx := context.Background()

	before, err := db.Stats(ctx)
	require.NoError(t, err)

	err = connA.ReadWrite(ctx, func(tx *Transaction) error {
		return tx.Set("accounts", "balance", nil)
	})
	require.Error(t, err)

	afterFailure, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, before.LastWriteTS, afterFailure.LastWriteTS)

	require.NoError(t, connB.ReadWrite(ctx, func(tx *Transaction) error {
		return tx.Set("accounts", "balance", []byte("100"))
	}))

	var value []byte
	var found bool
	require.NoError(t, connA.Read(ctx, func(tx *Transaction) error {
		v, ok, err := tx.Get("accounts", "balance")
		value, found = v, ok
		return err
	}))
	require.True(t, found)
	require.Equal(t, "100", string(value))
}

// TestBodyErrorAbortsPartialChangeset verifies that when a read-write
// body sets one key successfully and then fails, neither mutation is
// persisted: the whole transaction rolls back, not just the failing
// statement.
func TestBodyErrorAbortsPartialChangeset(t *testing.T) {
	db := openTestDB(t)
	conn := openTestConn(t, db)
	ctx := context.Background()

	err := conn.ReadWrite(ctx, func(tx *Transaction) error {
		if err := tx.Set("orders", "o1", []byte("pending")); err != nil {
			return err
		}
		return tx.Set("orders", "o2", nil)
	})
	require.Error(t, err)

	require.NoError(t, conn.Read(ctx, func(tx *Transaction) error {
		_, ok, err := tx.Get("orders", "o1")
		require.False(t, ok)
		return err
	}))
}
