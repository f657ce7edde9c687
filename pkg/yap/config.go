package yap

import "time"

// CheckpointMode selects how WAL checkpointing is driven (spec §4.1).
type CheckpointMode int

const (
	// CheckpointInline leaves SQLite's auto-checkpoint enabled on every
	// connection; checkpointing happens opportunistically during writes.
	// Slower writes, smaller WAL.
	CheckpointInline CheckpointMode = iota
	// CheckpointDedicated disables auto-checkpoint on all connections and
	// runs a low-priority background lane that checkpoints after each
	// commit, debounced. Faster writes, larger WAL.
	CheckpointDedicated
)

func (m CheckpointMode) String() string {
	if m == CheckpointDedicated {
		return "dedicated"
	}
	return "inline"
}

// Config configures a Database at Open. The engine itself reads no
// environment variables and has no config file of its own — per spec,
// it is a library; env/file resolution belongs to the embedding CLI
// (see internal/app for the demo's resolution layer).
type Config struct {
	// Path is the filesystem path to the SQLite file.
	Path string

	// ObjectCacheLimit is the per-connection LRU capacity for the value
	// cache; 0 disables it.
	ObjectCacheLimit int
	// MetadataCacheLimit is the per-connection LRU capacity for the
	// sidecar cache; 0 disables it.
	MetadataCacheLimit int

	// CheckpointMode selects inline vs dedicated checkpointing.
	CheckpointMode CheckpointMode

	// SchemaVersion is the revision this build understands. Open
	// compares it against the yap table's user_version row and fails
	// with SchemaMismatch if the on-disk value is newer than this.
	SchemaVersion int

	// BusyRetryBudget bounds how long a ReadWrite waits to acquire the
	// write lane before surfacing Busy.
	// Zero selects a sensible default (10s).
	BusyRetryBudget time.Duration

	// StatementCacheLimit bounds the user-level prepared-statement LRU.
	// Zero selects the default (32).
	StatementCacheLimit int

	// Hooks wires the subclass capability set (schema creation,
	// preparation, changeset→cache-block derivation). Required.
	Hooks Hooks
}

func (c Config) withDefaults() Config {
	if c.BusyRetryBudget <= 0 {
		c.BusyRetryBudget = 10 * time.Second
	}
	if c.StatementCacheLimit <= 0 {
		c.StatementCacheLimit = 32
	}
	return c
}
