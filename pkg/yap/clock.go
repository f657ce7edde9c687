package yap

import (
	"sync"
	"time"
)

// Clock is a monotonic, process-local timestamp source. lastWriteTimestamp
// must come from here, never from wall-clock arithmetic — per spec, a
// persisted timestamp is only a watermark within one process lifetime,
// never a continuation across restarts.
type Clock struct {
	start time.Time
	mu    sync.Mutex
	last  float64
}

// NewClock returns a Clock anchored at the current monotonic reading.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns seconds elapsed since the Clock was created, using Go's
// monotonic clock reading (time.Since never touches wall-clock time once
// both ends derive from time.Now()). The result is strictly
// non-decreasing and, within one call to Now, strictly greater than any
// previously observed value so that two back-to-back commits never
// collide on the same timestamp.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Since(c.start).Seconds()
	if now <= c.last {
		now = c.last + minTick
	}
	c.last = now
	return now
}

// Observe folds an externally-obtained timestamp (e.g. the persisted
// watermark read back from the yap table at Open) into the clock so that
// subsequent Now() calls stay monotonic with respect to it.
func (c *Clock) Observe(ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.last {
		c.last = ts
	}
}

// minTick is the smallest distinguishable step between two Now() calls,
// guarding against the (practically impossible but not forbidden by the
// platform) case where time.Since resolves to the same float64 twice in
// a row.
const minTick = 1e-9
