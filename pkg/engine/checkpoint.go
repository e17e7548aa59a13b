package engine

import (
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
)

// checkpointer throttles durable job-state writes: one write per saveEvery
// index steps or per saveInterval elapsed, whichever triggers first. Start
// and completion writes bypass the throttle so no run begins or ends
// unrecorded.
type checkpointer struct {
	store    store.Store
	key      string
	every    int
	interval time.Duration
	now      func() time.Time

	lastIndex int
	lastWrite time.Time
}

func newCheckpointer(s store.Store, key string, every int, interval time.Duration, now func() time.Time) *checkpointer {
	if now == nil {
		now = time.Now
	}
	return &checkpointer{
		store:    s,
		key:      key,
		every:    every,
		interval: interval,
		now:      now,
	}
}

// force writes unconditionally and resets the throttle window.
func (c *checkpointer) force(state any, index int) error {
	if err := store.SetJSON(c.store, c.key, state); err != nil {
		return err
	}
	c.lastIndex = index
	c.lastWrite = c.now()
	return nil
}

// maybeSave writes when the throttle window is exceeded.
func (c *checkpointer) maybeSave(state any, index int) error {
	if index-c.lastIndex < c.every && c.now().Sub(c.lastWrite) < c.interval {
		return nil
	}
	return c.force(state, index)
}
