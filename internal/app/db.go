package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/dotcommander/yap/internal/kvstore"
	"github.com/dotcommander/yap/pkg/yap"
)

// SchemaVersion is the schema revision this build of yapdemo
// understands, compared against the on-disk yap table's user_version
// row at Open.
const SchemaVersion = 1

// GetDBPath resolves the database path.
// Order of precedence:
// 1) CLI override (e.g. --db-path)
// 2) Environment variable: YAPDEMO_DB_PATH
// 3) config.yaml: db_path
// 4) Default: ~/.config/yapdemo/yap.db
// Returns an absolute path to yap.db and ensures the parent directory exists.
func GetDBPath() (string, error) {
	if override := getDBPathOverride(); override != "" {
		return EnsureDBDir(override)
	}

	if envPath := os.Getenv("YAPDEMO_DB_PATH"); envPath != "" {
		return EnsureDBDir(envPath)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath != "" {
		return EnsureDBDir(cfg.DBPath)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return EnsureDBDir(filepath.Join(configDir, "yap.db"))
}

// ResolveDBPathDetailed returns the resolved DB path along with the
// source of that decision, for the `db path` command.
func ResolveDBPathDetailed() (path string, source string, err error) {
	if override := getDBPathOverride(); override != "" {
		resolvedPath, ensureErr := EnsureDBDir(override)
		return resolvedPath, "cli(--db-path)", ensureErr
	}

	if envPath := os.Getenv("YAPDEMO_DB_PATH"); envPath != "" {
		resolvedPath, ensureErr := EnsureDBDir(envPath)
		return resolvedPath, "env(YAPDEMO_DB_PATH)", ensureErr
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}

	configPaths := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "yapdemo", "config.yaml"),
		"config.yaml",
	}

	for _, p := range configPaths {
		s, loadErr := loadSettingsFile(p)
		if loadErr == nil {
			if s.DBPath != "" {
				resolvedPath, ensureErr := EnsureDBDir(s.DBPath)
				return resolvedPath, fmt.Sprintf("config(%s)", p), ensureErr
			}
			continue
		}
		if errors.Is(loadErr, os.ErrNotExist) {
			continue
		}
		return "", "", fmt.Errorf("failed to load config %s: %w", p, loadErr)
	}

	resolved, err := EnsureDBDir(filepath.Join(dir, "yap.db"))
	return resolved, "default(~/.config/yapdemo/yap.db)", err
}

func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

// OpenStore resolves the database path, runs the kvstore subclass's own
// supplementary migrations (kv_tags), and opens the yap engine against
// it with the demo's Hooks and cache sizing.
func OpenStore(ctx context.Context) (*yap.Database, error) {
	path, err := GetDBPath()
	if err != nil {
		return nil, err
	}

	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}

	if err := migrateTagsTable(path); err != nil {
		return nil, fmt.Errorf("migrate kvstore tables: %w", err)
	}

	objectLimit := settings.ObjectCacheLimit
	if objectLimit == 0 {
		objectLimit = defaultObjectCacheLimit
	}
	metadataLimit := settings.MetadataCacheLimit
	if metadataLimit == 0 {
		metadataLimit = defaultMetadataCacheLimit
	}
	checkpointMode := yap.CheckpointInline
	if settings.CheckpointMode == "dedicated" {
		checkpointMode = yap.CheckpointDedicated
	}

	return yap.Open(ctx, yap.Config{
		Path:               path,
		ObjectCacheLimit:   objectLimit,
		MetadataCacheLimit: metadataLimit,
		CheckpointMode:     checkpointMode,
		SchemaVersion:      SchemaVersion,
		Hooks:              kvstore.NewHooks(),
	})
}

// migrateTagsTable opens its own short-lived *sql.DB against path to
// run the kvstore subclass's goose migrations before yap.Open takes
// ownership of the file's WAL/pragma configuration.
func migrateTagsTable(path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=rwc")
	if err != nil {
		return err
	}
	defer db.Close()
	return kvstore.MigrateTags(db)
}
