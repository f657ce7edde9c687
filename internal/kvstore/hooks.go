package kvstore

import (
	"database/sql"

	"github.com/dotcommander/yap/pkg/yap"
)

// NewHooks returns the yap.Hooks wiring the demo CLI uses. This
// subclass's cache keys are exactly the generic (collection, key)
// pairs the engine already understands, so it delegates cache
// invalidation to yap.DefaultCacheChangesetBlockFrom rather than
// deriving its own. CreateTables is left nil: kv_tags is created by
// MigrateTags ahead of Database.Open, not inside its bootstrap
// transaction.
func NewHooks() yap.Hooks {
	return yap.Hooks{
		CacheChangesetBlockFrom: yap.DefaultCacheChangesetBlockFrom,
	}
}

// Tag records that collection belongs to tag, via a direct write to
// kv_tags (outside the yap engine's own transaction machinery — tags
// are demo-level organizational metadata, not part of the opaque
// (collection, key) contract).
func Tag(db *sql.DB, collection, tag string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO kv_tags (collection, tag) VALUES (?, ?)`, collection, tag)
	return err
}

// TagsFor returns every tag recorded against collection.
func TagsFor(db *sql.DB, collection string) ([]string, error) {
	rows, err := db.Query(`SELECT tag FROM kv_tags WHERE collection = ? ORDER BY tag`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
