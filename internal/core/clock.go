package core

import (
	"sync"
	"time"
)

// Clock is the ledger's notion of "now": the timestamp of the latest input
// the sequencer applied. It never moves backwards, so a replay of the same
// inputs sees the same times.
type Clock struct {
	mu sync.RWMutex
	t  time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Advance moves the clock to t if t is later.
func (c *Clock) Advance(t time.Time) {
	c.mu.Lock()
	if t.After(c.t) {
		c.t = t
	}
	c.mu.Unlock()
}
