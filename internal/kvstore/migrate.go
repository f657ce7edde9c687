// Package kvstore is the example subclass: a generic key/value store
// wired onto the yap engine, demonstrating how an embedder supplies
// Hooks and grows its own schema alongside the engine's tables.
package kvstore

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrateTags runs this subclass's own supplementary migrations — the
// kv_tags table used to group collections under human-readable labels.
// These run against db directly as an ordinary goose migration set,
// independent of Database.Open's own bootstrap transaction, which owns
// only the engine's yap and yap_store tables.
func MigrateTags(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
