package yap

import (
	"context"
	"database/sql"
)

// Transaction is the handle a Read/ReadWrite body uses to touch data.
// It is valid only for the duration of that body; any use afterward
// returns TransactionExpired (spec §3's liveness invariant).
type Transaction struct {
	conn      *Connection
	ctx       context.Context
	readOnly  bool
	expired   bool
	changeset *Changeset

	// hasMarkedSqlLevelSharedReadLock is true once a SQLite-level read
	// within this Transaction is known to have pinned its DEFERRED
	// transaction's shared read lock (spec §4.2). beginAndReconcile's own
	// watermark read already does this for every Transaction by the time
	// the body starts running, so runRead/runReadWrite construct every
	// Transaction with it already true; the field still gates Get's
	// cache-hit trust so a Transaction built any other way degrades
	// safely instead of trusting a cache that might predate its lock.
	hasMarkedSqlLevelSharedReadLock bool
}

func (t *Transaction) checkLive() error {
	if t.expired {
		return newError(KindTransactionExpired, "transaction", nil)
	}
	return nil
}

func (t *Transaction) checkWritable() error {
	if err := t.checkLive(); err != nil {
		return err
	}
	if t.readOnly {
		return newError(KindReadOnly, "transaction", nil)
	}
	return nil
}

// fatal reclassifies cause as KindCorrupt and marks the Database
// fatally closed (spec §7) — reserved for genuine invariant violations
// (a prepared statement that should always succeed failing, a row that
// fails to scan, a query erroring out for any reason other than "no
// rows"), never for ordinary constraint failures a caller can retry.
func (t *Transaction) fatal(op string, cause error) error {
	return t.conn.fatal(t.ctx, op, cause)
}

// Get returns the value stored at (collection, key), or ok=false if
// absent. It consults the object cache first, falling back to the
// engine's own yap_store table on a miss and populating the cache on
// the way back out.
func (t *Transaction) Get(collection, key string) (value []byte, ok bool, err error) {
	if err := t.checkLive(); err != nil {
		return nil, false, err
	}

	// The object cache only ever holds confirmed present values: a miss
	// (whether "never cached" or "known absent") always falls through to
	// yap_store, since a zero-length []byte is a legitimate stored value
	// and cannot double as a not-found sentinel. The cache is only
	// trusted once hasMarkedSqlLevelSharedReadLock confirms this
	// Transaction's snapshot is actually pinned.
	fk := flatKey(collection, key)
	if t.hasMarkedSqlLevelSharedReadLock {
		if cached, hit := t.conn.objectCache.Get(fk); hit {
			return cached, true, nil
		}
	}

	stmt, err := t.conn.stmts.userStmt(t.ctx, `SELECT value FROM yap_store WHERE collection = ? AND key = ?`)
	if err != nil {
		return nil, false, t.fatal("get", err)
	}
	var blob []byte
	switch err := stmt.QueryRowContext(t.ctx, collection, key).Scan(&blob); {
	case err == sql.ErrNoRows:
		t.hasMarkedSqlLevelSharedReadLock = true
		return nil, false, nil
	case err != nil:
		return nil, false, t.fatal("get", err)
	}
	t.hasMarkedSqlLevelSharedReadLock = true

	t.conn.objectCache.Put(fk, blob)
	return blob, true, nil
}

// Has reports whether (collection, key) currently has a value, without
// returning it.
func (t *Transaction) Has(collection, key string) (bool, error) {
	_, ok, err := t.Get(collection, key)
	return ok, err
}

// Set stores value at (collection, key), recording the mutation in this
// Transaction's changeset for broadcast on commit. Returns ReadOnly on
// a read Transaction. An ordinary constraint failure (e.g. a NOT NULL
// violation from a nil value) surfaces as CommitFailed, not Corrupt:
// the transaction still rolls back cleanly, but it is the caller's
// mistake to retry differently, not evidence the Database is broken.
func (t *Transaction) Set(collection, key string, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}

	stmt, err := t.conn.stmts.userStmt(t.ctx, `
		INSERT INTO yap_store (collection, key, value) VALUES (?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return t.fatal("set", err)
	}
	if _, err := stmt.ExecContext(t.ctx, collection, key, value); err != nil {
		return newError(KindCommitFailed, "set", err)
	}

	t.changeset.record(collection, key, OpSet)
	return nil
}

// Remove deletes the value at (collection, key), if present.
func (t *Transaction) Remove(collection, key string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}

	stmt, err := t.conn.stmts.userStmt(t.ctx, `DELETE FROM yap_store WHERE collection = ? AND key = ?`)
	if err != nil {
		return t.fatal("remove", err)
	}
	if _, err := stmt.ExecContext(t.ctx, collection, key); err != nil {
		return newError(KindCommitFailed, "remove", err)
	}

	t.changeset.record(collection, key, OpRemove)
	return nil
}

// RemoveAll deletes every key in collection.
func (t *Transaction) RemoveAll(collection string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}

	selectStmt, err := t.conn.stmts.userStmt(t.ctx, `SELECT key FROM yap_store WHERE collection = ?`)
	if err != nil {
		return t.fatal("remove_all", err)
	}
	r, err := selectStmt.QueryContext(t.ctx, collection)
	if err != nil {
		return t.fatal("remove_all", err)
	}
	var keys []string
	for r.Next() {
		var k string
		if err := r.Scan(&k); err != nil {
			_ = r.Close()
			return t.fatal("remove_all", err)
		}
		keys = append(keys, k)
	}
	if err := r.Err(); err != nil {
		_ = r.Close()
		return t.fatal("remove_all", err)
	}
	_ = r.Close()

	stmt, err := t.conn.stmts.userStmt(t.ctx, `DELETE FROM yap_store WHERE collection = ?`)
	if err != nil {
		return t.fatal("remove_all", err)
	}
	if _, err := stmt.ExecContext(t.ctx, collection); err != nil {
		return newError(KindCommitFailed, "remove_all", err)
	}

	for _, k := range keys {
		t.changeset.record(collection, k, OpRemove)
	}
	return nil
}

// Enumerate calls fn for every (key, value) pair in collection, in no
// particular order. Stops early if fn returns false.
func (t *Transaction) Enumerate(collection string, fn func(key string, value []byte) bool) error {
	if err := t.checkLive(); err != nil {
		return err
	}

	stmt, err := t.conn.stmts.userStmt(t.ctx, `SELECT key, value FROM yap_store WHERE collection = ?`)
	if err != nil {
		return t.fatal("enumerate", err)
	}
	rows, err := stmt.QueryContext(t.ctx, collection)
	if err != nil {
		return t.fatal("enumerate", err)
	}
	defer rows.Close()
	t.hasMarkedSqlLevelSharedReadLock = true

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return t.fatal("enumerate", err)
		}
		if !fn(key, value) {
			break
		}
	}
	return rows.Err()
}
