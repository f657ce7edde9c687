package yap

import (
	"context"
	"database/sql"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dotcommander/yap/internal/lane"
)

// checkpointWorker runs PRAGMA wal_checkpoint(PASSIVE) on a dedicated
// lane after commits, debounced by the scheduled flag so a burst of
// commits collapses into a single pending checkpoint rather than one
// per commit (spec §4.1's checkpoint lane).
type checkpointWorker struct {
	path      string
	lane      *lane.Lane
	group     singleflight.Group
	scheduled atomic.Bool
}

func newCheckpointWorker(path string) (*checkpointWorker, error) {
	return &checkpointWorker{
		path: path,
		lane: lane.New(1),
	}, nil
}

// signal requests a checkpoint pass against pool. A signal that arrives
// while a pass is already queued or running is dropped, so it coalesces
// into that one pass, matching maybe_run_checkpoint's debounce.
func (w *checkpointWorker) signal(pool *sql.DB) {
	if !w.scheduled.CompareAndSwap(false, true) {
		return
	}
	w.lane.Submit(func() {
		defer w.scheduled.Store(false)
		w.group.Do("checkpoint", func() (interface{}, error) {
			_, err := pool.ExecContext(context.Background(), `PRAGMA wal_checkpoint(PASSIVE)`)
			return nil, err
		})
	}, nil, nil)
}

// syncCheckpoint blocks until a full (non-passive) checkpoint
// completes, used by an explicit flush/checkpoint command rather than
// the opportunistic post-commit signal.
func (w *checkpointWorker) syncCheckpoint(ctx context.Context, pool *sql.DB) error {
	return w.lane.Run(ctx, func() {
		_, _ = pool.ExecContext(ctx, `PRAGMA wal_checkpoint(FULL)`)
	})
}

func (w *checkpointWorker) close() {
	w.lane.Close()
}
