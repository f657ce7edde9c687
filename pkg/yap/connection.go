package yap

import (
	"context"
	"database/sql"
	"math"

	"github.com/dotcommander/yap/internal/lane"
	"github.com/dotcommander/yap/pkg/yap/cache"
)

// Connection is one client's handle onto a Database: a pinned SQLite
// connection, a serial lane that orders every transaction and async
// submission against it, and the two cache views (object, metadata)
// that the Database invalidates after every commit (spec §3, §4.2).
type Connection struct {
	db   *Database
	conn *sql.Conn
	lane *lane.Lane

	stmts *statementCache

	objectCache   *cache.View
	metadataCache *cache.View

	// cacheLastWriteTimestamp is the Database watermark as of which this
	// Connection's cache views are known-consistent. Advances only on the
	// lane: during pre_read / pre_read_write, after this Connection's own
	// commit, and when a sibling's commit broadcast is applied.
	cacheLastWriteTimestamp float64

	closed bool
}

// Read runs fn inside a read-only Transaction, blocking the caller until
// it completes. It is the synchronous counterpart to AsyncRead.
func (c *Connection) Read(ctx context.Context, fn func(*Transaction) error) error {
	var outerErr error
	err := c.lane.Run(ctx, func() {
		outerErr = c.runRead(ctx, fn)
	})
	if err != nil {
		return translateLaneErr(err)
	}
	return outerErr
}

// ReadWrite runs fn inside a read-write Transaction, acquiring the
// Database's single write lane for the duration of fn and the commit.
func (c *Connection) ReadWrite(ctx context.Context, fn func(*Transaction) error) error {
	var outerErr error
	err := c.lane.Run(ctx, func() {
		outerErr = c.runReadWrite(ctx, fn)
	})
	if err != nil {
		return translateLaneErr(err)
	}
	return outerErr
}

// AsyncRead submits fn to run as a read-only Transaction on this
// Connection's lane, returning immediately. completion, if non-nil,
// receives the result, dispatched onto onQueue (or run on a separate
// goroutine once fn has returned if onQueue is nil).
func (c *Connection) AsyncRead(ctx context.Context, fn func(*Transaction) error, completion func(error), onQueue *lane.Lane) {
	var err error
	c.lane.Submit(func() {
		err = c.runRead(ctx, fn)
	}, func() {
		if completion != nil {
			completion(err)
		}
	}, onQueue)
}

// AsyncReadWrite is the async counterpart to ReadWrite.
func (c *Connection) AsyncReadWrite(ctx context.Context, fn func(*Transaction) error, completion func(error), onQueue *lane.Lane) {
	var err error
	c.lane.Submit(func() {
		err = c.runReadWrite(ctx, fn)
	}, func() {
		if completion != nil {
			completion(err)
		}
	}, onQueue)
}

// FlushMemory drops this Connection's cached state under memory
// pressure (spec §9's resolved Open Question): level 0 is a no-op,
// level 1 drops the object cache only, level 2 drops both object and
// metadata caches.
func (c *Connection) FlushMemory(ctx context.Context, level int) error {
	return c.lane.Run(ctx, func() {
		switch {
		case level <= 0:
			return
		case level == 1:
			c.objectCache.DropAll()
		default:
			c.objectCache.DropAll()
			c.metadataCache.DropAll()
		}
	})
}

// Close finalizes this Connection's prepared statements, releases its
// pinned SQLite connection, stops its lane, and deregisters it from the
// Database.
func (c *Connection) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.lane.Close()
	c.stmts.close()
	err := c.conn.Close()
	c.db.dropConnection(ctx, c)
	if err != nil {
		return c.fatal(ctx, "close", err)
	}
	return nil
}

// invalidateAsync is called by the Database's snapshot lane, once per
// sibling, after a commit. It dispatches the cache invalidation onto
// this Connection's own lane so it never races with that Connection's
// own in-flight transactions, and advances cacheLastWriteTimestamp to
// ts so this Connection's next begin can take the "keep" fast path
// (spec §4.2 step 5) instead of finding itself stale.
func (c *Connection) invalidateAsync(ts float64, block func(string) cache.Disposition) {
	c.lane.Submit(func() {
		c.objectCache.Apply(block)
		c.metadataCache.Apply(block)
		if ts > c.cacheLastWriteTimestamp {
			c.cacheLastWriteTimestamp = ts
		}
	}, nil, nil)
}

// fatal wraps cause as KindCorrupt and, per spec §7, marks the whole
// Database closed: every live Connection's lane is closed so pending
// async submissions complete Cancelled, and no further Connection can
// be opened or transact. Corrupt is never a locally-scoped error.
func (c *Connection) fatal(ctx context.Context, op string, cause error) error {
	c.db.markFatal(ctx)
	return newError(KindCorrupt, op, cause)
}

// runRead executes the pre-read / body / post-read protocol (spec
// §4.2). Must run on c.lane.
func (c *Connection) runRead(ctx context.Context, fn func(*Transaction) error) error {
	if err := c.beginAndReconcile(ctx); err != nil {
		return err
	}
	_ = c.db.updateSnapshot(ctx, c, phaseInReadTxn, c.cacheLastWriteTimestamp)
	defer func() { _ = c.db.updateSnapshot(ctx, c, phaseIdle, math.Inf(1)) }()

	tx := &Transaction{conn: c, ctx: ctx, readOnly: true, hasMarkedSqlLevelSharedReadLock: true}
	bodyErr := fn(tx)
	tx.expired = true

	if rbErr := c.rollback(ctx); rbErr != nil && bodyErr == nil {
		return newError(KindCommitFailed, "read", rbErr)
	}
	return bodyErr
}

// acquireWriteLane blocks until the Database's single write lane is
// free, bounded by cfg.BusyRetryBudget (spec §7): exhausting that
// budget surfaces Busy. Cancelled is reserved for the narrower cases of
// this Connection already being closed, or the caller's own ctx being
// cancelled independent of the budget.
func (c *Connection) acquireWriteLane(ctx context.Context) error {
	if c.closed {
		return newError(KindCancelled, "read_write", nil)
	}

	budgetCtx, cancel := context.WithTimeout(ctx, c.db.cfg.BusyRetryBudget)
	defer cancel()

	if err := c.db.write.Acquire(budgetCtx, 1); err != nil {
		if c.closed || ctx.Err() != nil {
			return newError(KindCancelled, "read_write", err)
		}
		return newError(KindBusy, "read_write", err)
	}
	return nil
}

// runReadWrite executes the pre-read-write / body / post-read-write
// protocol (spec §4.2): write lane acquisition, commit-race reconciled
// snapshot, changeset assembly, pending/committed bookkeeping, cache
// invalidation broadcast, and write lane release — in that order.
func (c *Connection) runReadWrite(ctx context.Context, fn func(*Transaction) error) error {
	if err := c.acquireWriteLane(ctx); err != nil {
		return err
	}
	defer c.db.write.Release(1)

	if err := c.beginAndReconcile(ctx); err != nil {
		return err
	}
	_ = c.db.updateSnapshot(ctx, c, phaseInReadWriteTxn, c.cacheLastWriteTimestamp)
	defer func() { _ = c.db.updateSnapshot(ctx, c, phaseIdle, math.Inf(1)) }()

	cs := newChangeset()
	tx := &Transaction{conn: c, ctx: ctx, readOnly: false, changeset: cs, hasMarkedSqlLevelSharedReadLock: true}
	bodyErr := fn(tx)
	tx.expired = true

	if bodyErr != nil || cs.empty() {
		if rbErr := c.rollback(ctx); rbErr != nil {
			return newError(KindCommitFailed, "read_write", rbErr)
		}
		return bodyErr
	}

	cs.Timestamp = c.db.clock.Now()
	if err := c.db.notePendingChanges(ctx, cs); err != nil {
		_ = c.rollback(ctx)
		return newError(KindCommitFailed, "read_write", err)
	}

	setStmt, err := c.stmts.yapSetStmt(ctx)
	if err != nil {
		c.db.discardPendingChanges(ctx, cs)
		_ = c.rollback(ctx)
		return newError(KindCommitFailed, "read_write", err)
	}
	if _, err := setStmt.ExecContext(ctx, keyLastWriteTimestamp, encodeFloat64(cs.Timestamp)); err != nil {
		c.db.discardPendingChanges(ctx, cs)
		_ = c.rollback(ctx)
		return newError(KindCommitFailed, "read_write", err)
	}

	commitStmt, err := c.stmts.commitStmt(ctx)
	if err != nil {
		c.db.discardPendingChanges(ctx, cs)
		_ = c.rollback(ctx)
		return newError(KindCommitFailed, "read_write", err)
	}
	if _, err := commitStmt.ExecContext(ctx); err != nil {
		c.db.discardPendingChanges(ctx, cs)
		return newError(KindCommitFailed, "read_write", err)
	}

	c.applyOwnWrites(cs)
	c.cacheLastWriteTimestamp = cs.Timestamp

	if err := c.db.noteCommittedChanges(ctx, c, cs); err != nil {
		return newError(KindCommitFailed, "read_write", err)
	}
	return nil
}

// beginAndReconcile implements spec §4.2's pre-read protocol literally:
// fetch T_yap on the snapshot lane before BEGIN (step 1), open the
// SQLite-level transaction, read T_sql from the yap table — the first
// SQL-level read, which pins the DEFERRED transaction's shared read
// lock — then branch. T_sql trailing T_yap means the watermark went
// backwards, which is Corrupt. If T_sql raced ahead of T_yap, a
// sibling committed in the window between our T_yap fetch and our
// BEGIN: replay exactly the intervening changesets (step 4). Otherwise
// reconcile against this Connection's own last-seen watermark: equal
// keeps the cache as-is (step 5), less is an invariant violation (step
// 6), and greater-but-not-racing flushes the cache entirely rather than
// guess at what was missed (step 7). Must run on c.lane.
func (c *Connection) beginAndReconcile(ctx context.Context) error {
	closed, err := c.db.isClosed(ctx)
	if err != nil {
		return newError(KindCancelled, "begin", err)
	}
	if closed {
		return newError(KindCorrupt, "begin", nil)
	}

	tYap, err := c.db.currentWatermark(ctx)
	if err != nil {
		return newError(KindCancelled, "begin", err)
	}

	beginStmt, err := c.stmts.beginStmt(ctx)
	if err != nil {
		return newError(KindOpenError, "begin", err)
	}
	if _, err := beginStmt.ExecContext(ctx); err != nil {
		return newError(KindBusy, "begin", err)
	}

	getStmt, err := c.stmts.yapGetStmt(ctx)
	if err != nil {
		_ = c.rollback(ctx)
		return c.fatal(ctx, "begin", err)
	}
	var blob []byte
	if err := getStmt.QueryRowContext(ctx, keyLastWriteTimestamp).Scan(&blob); err != nil {
		_ = c.rollback(ctx)
		return c.fatal(ctx, "begin", err)
	}
	tSql, ok := decodeFloat64(blob)
	if !ok {
		_ = c.rollback(ctx)
		return c.fatal(ctx, "begin", nil)
	}

	if tSql < tYap {
		_ = c.rollback(ctx)
		return c.fatal(ctx, "begin", nil)
	}
	if tSql > tYap {
		changes, err := c.db.pendingAndCommittedChangesSince(ctx, tYap, tSql)
		if err != nil {
			_ = c.rollback(ctx)
			return c.fatal(ctx, "begin", err)
		}
		for _, cs := range changes {
			block := c.db.cacheChangesetBlockFrom(cs)
			c.objectCache.Apply(block)
			c.metadataCache.Apply(block)
		}
		c.cacheLastWriteTimestamp = tSql
		return nil
	}

	switch {
	case tSql == c.cacheLastWriteTimestamp:
		// Keep: this Connection's cache is already consistent with T_sql.
	case tSql < c.cacheLastWriteTimestamp:
		_ = c.rollback(ctx)
		return c.fatal(ctx, "begin", nil)
	default:
		c.objectCache.DropAll()
		c.metadataCache.DropAll()
		c.cacheLastWriteTimestamp = tSql
	}
	return nil
}

// applyOwnWrites updates this Connection's own cache views immediately
// after its own commit succeeds, using the same block-derivation the
// Database broadcasts to every sibling — this Connection simply runs it
// against itself rather than waiting for the async broadcast.
func (c *Connection) applyOwnWrites(cs *Changeset) {
	block := c.db.cacheChangesetBlockFrom(cs)
	c.objectCache.Apply(block)
	c.metadataCache.Apply(block)
}

func (c *Connection) rollback(ctx context.Context) error {
	stmt, err := c.stmts.rollbackStmt(ctx)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx)
	return err
}

func translateLaneErr(err error) error {
	if err == lane.ErrClosed {
		return ErrCancelled
	}
	return newError(KindCancelled, "lane", err)
}
