package yap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// corruptWatermark overwrites the persisted lastWriteTimestamp with a
// blob decodeFloat64 cannot parse, forcing the next beginAndReconcile
// on any Connection to raise KindCorrupt.
func corruptWatermark(t *testing.T, db *Database) {
	t.Helper()
	_, err := db.Pool().ExecContext(context.Background(),
		`UPDATE yap SET data = ? WHERE key = ?`, []byte{0x01, 0x02, 0x03}, keyLastWriteTimestamp)
	require.NoError(t, err)
}

// TestCorruptIsFatalToTheWholeDatabase drives spec.md §7's "Corrupt is
// fatal" rule end to end: once one Connection raises KindCorrupt, the
// Database is marked closed, every live sibling Connection becomes
// unusable, and no further Connection can be opened.
func TestCorruptIsFatalToTheWholeDatabase(t *testing.T) {
	db := openTestDB(t)
	connA := openTestConn(t, db)
	connB := openTestConn(t, db)
	ctx := context.Background()

	require.NoError(t, connA.Read(ctx, func(tx *Transaction) error {
		_, _, err := tx.Get("widgets", "a")
		return err
	}))

	corruptWatermark(t, db)

	err := connA.Read(ctx, func(tx *Transaction) error {
		_, _, err := tx.Get("widgets", "a")
		return err
	})
	require.Error(t, err)
	require.True(t, asYapErrorKind(err, KindCorrupt))

	// connB never touched the corrupted row itself, but it must now be
	// unusable too: its lane was closed by connA's fatal propagation.
	err = connB.Read(ctx, func(tx *Transaction) error {
		_, _, err := tx.Get("widgets", "a")
		return err
	})
	require.Error(t, err)
	require.True(t, asYapErrorKind(err, KindCancelled))

	// connA itself is also unusable on any subsequent call.
	err = connA.Read(ctx, func(tx *Transaction) error { return nil })
	require.Error(t, err)
	require.True(t, asYapErrorKind(err, KindCancelled))

	_, err = db.NewConnection(ctx)
	require.Error(t, err)
	require.True(t, asYapErrorKind(err, KindCorrupt))
}
