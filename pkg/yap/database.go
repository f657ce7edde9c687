package yap

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/dotcommander/yap/internal/lane"
	"github.com/dotcommander/yap/pkg/yap/cache"

	_ "modernc.org/sqlite"
)

const (
	keyUserVersion        = "user_version"
	keyLastWriteTimestamp = "lastWriteTimestamp"
)

// txPhase mirrors a Connection's position in its state machine, as
// tracked by the Database's per-connection bookkeeping (spec §3's
// ConnectionState).
type txPhase int

const (
	phaseIdle txPhase = iota
	phaseInReadTxn
	phaseInReadWriteTxn
	phaseCommitting
	phaseAborting
	phaseClosed
)

// connState is the Database's bookkeeping record for one live
// Connection, owned exclusively by the snapshot lane. snapshotTS is
// +Inf while idle (holds no snapshot, so it never constrains GC) and
// set to the connection's actual snapshot watermark for the duration
// of a read or read-write transaction.
type connState struct {
	conn       *Connection
	phase      txPhase
	snapshotTS float64
}

// Database is the coordinator: it owns the SQLite file, the list of
// live connections, the pending/committed changeset log, and the
// snapshot clock (spec §4.1).
type Database struct {
	cfg   Config
	pool  *sql.DB
	clock *Clock

	snapshot *lane.Lane           // guards conns, log, lastWriteTimestamp
	write    *semaphore.Weighted  // the write lane: at most one writer at a time
	checkpt  *checkpointWorker    // nil when CheckpointMode == CheckpointInline

	// Everything below is touched only from the snapshot lane.
	conns              map[*Connection]*connState
	log                *changesetLog
	lastWriteTimestamp float64
	closed             bool
}

// Open opens path in WAL mode, bootstraps the yap metadata table (and
// the engine's generic opaque key/value store), runs the subclass's
// CreateTables hook, and starts the snapshot lane and (if configured)
// the dedicated checkpoint lane.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, newError(KindOpenError, "open", fmt.Errorf("config.Path is required"))
	}
	if err := cfg.Hooks.validate(); err != nil {
		return nil, err
	}

	pool, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, newError(KindOpenError, "open", err)
	}
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	if cfg.CheckpointMode == CheckpointDedicated {
		pragmas = append(pragmas, "PRAGMA wal_autocheckpoint=0")
	}
	for _, p := range pragmas {
		if _, err := pool.ExecContext(ctx, p); err != nil {
			_ = pool.Close()
			return nil, newError(KindOpenError, "open", err)
		}
	}

	clock := NewClock()

	db := &Database{
		cfg:      cfg,
		pool:     pool,
		clock:    clock,
		snapshot: lane.New(16),
		write:    semaphore.NewWeighted(1),
		conns:    make(map[*Connection]*connState),
		log:      newChangesetLog(),
	}

	watermark, err := bootstrap(ctx, pool, cfg)
	if err != nil {
		_ = pool.Close()
		db.snapshot.Close()
		return nil, err
	}
	clock.Observe(watermark)
	db.lastWriteTimestamp = watermark

	if cfg.Hooks.Prepare != nil {
		db.snapshot.Submit(func() { cfg.Hooks.Prepare(pool) }, nil, nil)
	}

	if cfg.CheckpointMode == CheckpointDedicated {
		worker, err := newCheckpointWorker(cfg.Path)
		if err != nil {
			_ = pool.Close()
			db.snapshot.Close()
			return nil, newError(KindOpenError, "open", err)
		}
		db.checkpt = worker
	}

	return db, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return "file:" + path + "?mode=rwc"
}

// bootstrap creates the yap and yap_store tables (idempotent), checks
// the persisted user_version against cfg.SchemaVersion, runs the
// subclass's CreateTables hook, and returns the persisted
// lastWriteTimestamp watermark (0 for a brand new database).
func bootstrap(ctx context.Context, pool *sql.DB, cfg Config) (float64, error) {
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, newError(KindOpenError, "open", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS yap (
			key  TEXT PRIMARY KEY,
			data BLOB
		)
	`); err != nil {
		return 0, newError(KindOpenError, "open", err)
	}

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS yap_store (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			PRIMARY KEY (collection, key)
		)
	`); err != nil {
		return 0, newError(KindOpenError, "open", err)
	}

	var versionBlob []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM yap WHERE key = ?`, keyUserVersion).Scan(&versionBlob)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO yap (key, data) VALUES (?, ?)`,
			keyUserVersion, encodeInt64(int64(cfg.SchemaVersion))); err != nil {
			return 0, newError(KindOpenError, "open", err)
		}
	case err != nil:
		return 0, newError(KindOpenError, "open", err)
	default:
		persisted, ok := decodeInt64(versionBlob)
		if !ok {
			return 0, newError(KindCorrupt, "open", fmt.Errorf("malformed user_version blob"))
		}
		if persisted > int64(cfg.SchemaVersion) {
			return 0, newError(KindSchemaMismatch, "open",
				fmt.Errorf("on-disk user_version %d is newer than this build (%d)", persisted, cfg.SchemaVersion))
		}
	}

	var watermark float64
	var tsBlob []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM yap WHERE key = ?`, keyLastWriteTimestamp).Scan(&tsBlob)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO yap (key, data) VALUES (?, ?)`,
			keyLastWriteTimestamp, encodeFloat64(0)); err != nil {
			return 0, newError(KindOpenError, "open", err)
		}
	case err != nil:
		return 0, newError(KindOpenError, "open", err)
	default:
		ts, ok := decodeFloat64(tsBlob)
		if !ok {
			return 0, newError(KindCorrupt, "open", fmt.Errorf("malformed lastWriteTimestamp blob"))
		}
		watermark = ts
	}

	if cfg.Hooks.CreateTables != nil {
		if _, err := cfg.Hooks.CreateTables(tx); err != nil {
			return 0, newError(KindOpenError, "open", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, newError(KindOpenError, "open", err)
	}
	return watermark, nil
}

// Stats is a point-in-time snapshot of the Database's coordination
// state, reported on the snapshot lane so it never races with a
// concurrent commit.
type Stats struct {
	ConnectionCount int
	PendingCount    int
	CommittedCount  int
	LastWriteTS     float64
	CheckpointMode  CheckpointMode
}

// Stats returns a point-in-time snapshot of connection and changeset
// log bookkeeping.
func (d *Database) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := d.snapshot.Run(ctx, func() {
		s = Stats{
			ConnectionCount: len(d.conns),
			PendingCount:    len(d.log.pending),
			CommittedCount:  len(d.log.committed),
			LastWriteTS:     d.lastWriteTimestamp,
			CheckpointMode:  d.cfg.CheckpointMode,
		}
	})
	return s, err
}

// Checkpoint forces a full WAL checkpoint, blocking until it completes.
// Valid in either CheckpointMode; in CheckpointInline mode it simply
// runs the pragma directly against the pool rather than through the
// dedicated checkpoint lane.
func (d *Database) Checkpoint(ctx context.Context) error {
	if d.checkpt != nil {
		return d.checkpt.syncCheckpoint(ctx, d.pool)
	}
	_, err := d.pool.ExecContext(ctx, `PRAGMA wal_checkpoint(FULL)`)
	if err != nil {
		return newError(KindCommitFailed, "checkpoint", err)
	}
	return nil
}

// Pool returns the underlying *sql.DB, for a subclass's own direct
// access to tables outside the engine's (collection, key) contract
// (e.g. internal/kvstore's kv_tags). The engine's own yap and
// yap_store tables should only ever be touched through Connection /
// Transaction.
func (d *Database) Pool() *sql.DB { return d.pool }

// NewConnection allocates a fresh SQLite handle against the same path
// and registers a ConnectionState on the snapshot lane.
func (d *Database) NewConnection(ctx context.Context) (*Connection, error) {
	closed, err := d.isClosed(ctx)
	if err != nil {
		return nil, newError(KindCancelled, "new_connection", err)
	}
	if closed {
		return nil, newError(KindCorrupt, "new_connection", nil)
	}

	raw, err := d.pool.Conn(ctx)
	if err != nil {
		return nil, newError(KindOpenError, "new_connection", err)
	}

	c := &Connection{
		db:                      d,
		conn:                    raw,
		lane:                    lane.New(16),
		stmts:                   newStatementCache(raw, d.cfg.StatementCacheLimit),
		objectCache:             cache.NewView(d.cfg.ObjectCacheLimit),
		metadataCache:           cache.NewView(d.cfg.MetadataCacheLimit),
		cacheLastWriteTimestamp: math.Inf(-1),
	}

	err = d.snapshot.Run(ctx, func() {
		d.conns[c] = &connState{conn: c, phase: phaseIdle, snapshotTS: math.Inf(1)}
	})
	if err != nil {
		_ = raw.Close()
		c.lane.Close()
		return nil, newError(KindOpenError, "new_connection", err)
	}

	return c, nil
}

// dropConnection is invoked by a Connection on teardown. The Database
// removes its ConnectionState and prunes changesets now reachable by no
// live reader.
func (d *Database) dropConnection(ctx context.Context, c *Connection) {
	_ = d.snapshot.Run(ctx, func() {
		delete(d.conns, c)
		d.log.prune(d.minSnapshotLocked())
	})
}

// currentWatermark returns the Database's lastWriteTimestamp as of now,
// read on the snapshot lane. This is T_yap in spec §4.2's pre-read
// protocol, fetched before a Connection issues BEGIN.
func (d *Database) currentWatermark(ctx context.Context) (float64, error) {
	var ts float64
	err := d.snapshot.Run(ctx, func() { ts = d.lastWriteTimestamp })
	return ts, err
}

// isClosed reports whether a KindCorrupt error has already marked this
// Database fatally closed (spec §7). Read on the snapshot lane
// alongside every other field markFatal guards.
func (d *Database) isClosed(ctx context.Context) (bool, error) {
	var closed bool
	err := d.snapshot.Run(ctx, func() { closed = d.closed })
	return closed, err
}

// markFatal is invoked the first time a Connection raises KindCorrupt.
// Per spec §7, Corrupt is never a local, recoverable error: it marks the
// whole Database closed and closes every live Connection's lane, so any
// further Read/ReadWrite/NewConnection fails and any async submission
// still in flight completes Cancelled rather than running.
func (d *Database) markFatal(ctx context.Context) {
	var conns []*Connection
	_ = d.snapshot.Run(ctx, func() {
		if d.closed {
			return
		}
		d.closed = true
		for conn := range d.conns {
			conns = append(conns, conn)
		}
	})
	for _, conn := range conns {
		conn.lane.Close()
	}
}

// minSnapshotLocked returns the minimum snapshot timestamp across all
// live connections, or +Inf if there are none. Must be called from the
// snapshot lane.
func (d *Database) minSnapshotLocked() float64 {
	min := math.Inf(1)
	for _, cs := range d.conns {
		if cs.snapshotTS < min {
			min = cs.snapshotTS
		}
	}
	return min
}

// enumerateConnectionStates passes each ConnectionState to fn, on the
// snapshot lane, exactly as spec §4.1 requires.
func (d *Database) enumerateConnectionStates(ctx context.Context, fn func(c *Connection, phase string)) error {
	return d.snapshot.Run(ctx, func() {
		for _, cs := range d.conns {
			fn(cs.conn, phaseName(cs.phase))
		}
	})
}

func phaseName(p txPhase) string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseInReadTxn:
		return "in_read_txn"
	case phaseInReadWriteTxn:
		return "in_read_write_txn"
	case phaseCommitting:
		return "committing"
	case phaseAborting:
		return "aborting"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionPhases reports the current protocol phase of every live
// Connection, keyed by a stable per-connection label — diagnostic use
// only, exposing the same bookkeeping Stats aggregates.
func (d *Database) ConnectionPhases(ctx context.Context) (map[string]string, error) {
	phases := make(map[string]string)
	err := d.enumerateConnectionStates(ctx, func(c *Connection, phase string) {
		phases[fmt.Sprintf("conn_%p", c)] = phase
	})
	return phases, err
}

// updateSnapshot records c's phase and snapshot timestamp on the
// snapshot lane. Called from the Connection's lane once pre_read /
// pre_read_write completes, and again (idle, +Inf) when the
// transaction ends.
func (d *Database) updateSnapshot(ctx context.Context, c *Connection, phase txPhase, ts float64) error {
	return d.snapshot.Run(ctx, func() {
		cs, ok := d.conns[c]
		if !ok {
			return
		}
		cs.phase = phase
		cs.snapshotTS = ts
	})
}

// notePendingChanges is called by a Connection before it issues the
// SQLite COMMIT (spec §4.1).
func (d *Database) notePendingChanges(ctx context.Context, cs *Changeset) error {
	return d.snapshot.Run(ctx, func() { d.log.addPending(cs) })
}

// discardPendingChanges removes cs from the pending log without
// committing it — the rollback path of post_read_write.
func (d *Database) discardPendingChanges(ctx context.Context, cs *Changeset) {
	_ = d.snapshot.Run(ctx, func() { d.log.discard(cs) })
}

// noteCommittedChanges is called after the SQLite COMMIT returns
// success. It moves the record from pending to committed, broadcasts it
// to every sibling Connection, updates lastWriteTimestamp, and signals
// the checkpoint worker.
func (d *Database) noteCommittedChanges(ctx context.Context, from *Connection, cs *Changeset) error {
	var siblings []*Connection
	err := d.snapshot.Run(ctx, func() {
		d.log.commit(cs)
		if cs.Timestamp > d.lastWriteTimestamp {
			d.lastWriteTimestamp = cs.Timestamp
		}
		d.clock.Observe(cs.Timestamp)
		for conn := range d.conns {
			if conn != from {
				siblings = append(siblings, conn)
			}
		}
	})
	if err != nil {
		return err
	}

	block := d.cacheChangesetBlockFrom(cs)
	for _, sibling := range siblings {
		sibling.invalidateAsync(cs.Timestamp, block)
	}

	if d.checkpt != nil {
		d.checkpt.signal(d.pool)
	}
	return nil
}

// pendingAndCommittedChangesSince returns every Changeset with
// fromExclusive < ts <= untilInclusive, in timestamp order — used by a
// reader caught in the commit race.
func (d *Database) pendingAndCommittedChangesSince(ctx context.Context, fromExclusive, untilInclusive float64) ([]*Changeset, error) {
	var out []*Changeset
	err := d.snapshot.Run(ctx, func() {
		out = d.log.since(fromExclusive, untilInclusive)
	})
	return out, err
}

// cacheChangesetBlockFrom delegates to the subclass hook, converting
// yap.Disposition to cache.Disposition (identical underlying values by
// construction, kept as distinct types to avoid an import cycle between
// pkg/yap and pkg/yap/cache).
func (d *Database) cacheChangesetBlockFrom(cs *Changeset) func(string) cache.Disposition {
	f := d.cfg.Hooks.CacheChangesetBlockFrom(cs)
	return func(key string) cache.Disposition { return cache.Disposition(f(key)) }
}

// Close stops the checkpoint worker (if any), the snapshot lane, and
// the connection pool. Live Connections are not implicitly closed —
// callers must close every Connection it created first.
func (d *Database) Close() error {
	if d.checkpt != nil {
		d.checkpt.close()
	}
	d.snapshot.Close()
	return d.pool.Close()
}

// DefaultCacheChangesetBlockFrom is the engine-provided default
// derivation for subclasses whose cache keys are exactly the generic
// (collection, key) pairs the engine's own Transaction.Get/Set/Remove
// operate on — the common case for a subclass with no denormalized
// views of its own (see internal/kvstore.NewHooks). A subclass with
// derived/materialized cache keys should supply its own
// CacheChangesetBlockFrom instead.
func DefaultCacheChangesetBlockFrom(cs *Changeset) func(key string) Disposition {
	return func(key string) Disposition {
		for collection, ops := range cs.Mutations {
			if op, ok := ops[stripCollection(collection, key)]; ok {
				if op == OpRemove {
					return Deleted
				}
				return Modified
			}
		}
		return Unchanged
	}
}

// stripCollection extracts the bare key portion of a flatKey if key was
// built by flatKey(collection, rawKey); otherwise returns key unchanged
// so callers can pass either form.
func stripCollection(collection, key string) string {
	prefix := collection + "\x00"
	if strings.HasPrefix(key, prefix) {
		return strings.TrimPrefix(key, prefix)
	}
	return key
}
