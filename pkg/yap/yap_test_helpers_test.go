package yap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig returns a Config pointed at a fresh database file under
// t.TempDir(), wired with the engine's own default cache-invalidation
// hook — suitable for any test exercising the generic (collection,
// key) contract without a subclass schema of its own.
func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:               filepath.Join(t.TempDir(), "yap.db"),
		ObjectCacheLimit:   64,
		MetadataCacheLimit: 64,
		SchemaVersion:      1,
		Hooks: Hooks{
			CacheChangesetBlockFrom: DefaultCacheChangesetBlockFrom,
		},
	}
}

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openTestConn(t *testing.T, db *Database) *Connection {
	t.Helper()
	conn, err := db.NewConnection(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}
