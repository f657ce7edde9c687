package yap

import (
	"container/list"
	"context"
	"database/sql"
	"fmt"
)

// statementCache holds one Connection's lazily-prepared statements:
// begin/commit/rollback plus the engine's own yap-table get/set, all
// bound to the Connection's pinned *sql.Conn so they never migrate to a
// different physical SQLite connection underneath it. A small LRU of
// user-level prepared statements rounds it out; eviction finalizes the
// statement before drop (spec §4.2).
type statementCache struct {
	conn *sql.Conn

	beginTx    *sql.Stmt
	commitTx   *sql.Stmt
	rollbackTx *sql.Stmt
	yapGet     *sql.Stmt
	yapSet     *sql.Stmt

	userLimit int
	userOrder *list.List
	userElems map[string]*list.Element
}

type userStmtEntry struct {
	query string
	stmt  *sql.Stmt
}

func newStatementCache(conn *sql.Conn, userLimit int) *statementCache {
	return &statementCache{
		conn:      conn,
		userLimit: userLimit,
		userOrder: list.New(),
		userElems: make(map[string]*list.Element),
	}
}

// beginStmt lazily prepares "BEGIN DEFERRED", the statement a Connection
// execs to open a SQLite-level transaction before any read.
func (c *statementCache) beginStmt(ctx context.Context) (*sql.Stmt, error) {
	if c.beginTx == nil {
		stmt, err := c.conn.PrepareContext(ctx, `BEGIN DEFERRED`)
		if err != nil {
			return nil, err
		}
		c.beginTx = stmt
	}
	return c.beginTx, nil
}

// commitStmt lazily prepares "COMMIT".
func (c *statementCache) commitStmt(ctx context.Context) (*sql.Stmt, error) {
	if c.commitTx == nil {
		stmt, err := c.conn.PrepareContext(ctx, `COMMIT`)
		if err != nil {
			return nil, err
		}
		c.commitTx = stmt
	}
	return c.commitTx, nil
}

// rollbackStmt lazily prepares "ROLLBACK".
func (c *statementCache) rollbackStmt(ctx context.Context) (*sql.Stmt, error) {
	if c.rollbackTx == nil {
		stmt, err := c.conn.PrepareContext(ctx, `ROLLBACK`)
		if err != nil {
			return nil, err
		}
		c.rollbackTx = stmt
	}
	return c.rollbackTx, nil
}

// yapGetStmt lazily prepares and returns the statement that reads a
// value out of the yap metadata table.
func (c *statementCache) yapGetStmt(ctx context.Context) (*sql.Stmt, error) {
	if c.yapGet == nil {
		stmt, err := c.conn.PrepareContext(ctx, `SELECT data FROM yap WHERE key = ?`)
		if err != nil {
			return nil, err
		}
		c.yapGet = stmt
	}
	return c.yapGet, nil
}

// yapSetStmt lazily prepares and returns the statement that upserts a
// value into the yap metadata table.
func (c *statementCache) yapSetStmt(ctx context.Context) (*sql.Stmt, error) {
	if c.yapSet == nil {
		stmt, err := c.conn.PrepareContext(ctx, `
			INSERT INTO yap (key, data) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET data = excluded.data
		`)
		if err != nil {
			return nil, err
		}
		c.yapSet = stmt
	}
	return c.yapSet, nil
}

// userStmt returns a prepared statement for query, reusing it from the
// LRU if present, evicting (and finalizing) the least-recently-used
// entry if the cache is full.
func (c *statementCache) userStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if c.userLimit <= 0 {
		return c.conn.PrepareContext(ctx, query)
	}

	if elem, ok := c.userElems[query]; ok {
		c.userOrder.MoveToFront(elem)
		return elem.Value.(*userStmtEntry).stmt, nil
	}

	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}

	if c.userOrder.Len() >= c.userLimit {
		back := c.userOrder.Back()
		if back != nil {
			evicted := c.userOrder.Remove(back).(*userStmtEntry)
			delete(c.userElems, evicted.query)
			_ = evicted.stmt.Close()
		}
	}

	elem := c.userOrder.PushFront(&userStmtEntry{query: query, stmt: stmt})
	c.userElems[query] = elem
	return stmt, nil
}

// close finalizes every statement held by the cache, engine and
// user-level alike. Called on Connection drop.
func (c *statementCache) close() {
	for _, stmt := range []*sql.Stmt{c.beginTx, c.commitTx, c.rollbackTx, c.yapGet, c.yapSet} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	for elem := c.userOrder.Front(); elem != nil; elem = elem.Next() {
		_ = elem.Value.(*userStmtEntry).stmt.Close()
	}
}
