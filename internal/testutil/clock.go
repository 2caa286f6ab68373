// Package testutil provides deterministic test doubles shared across
// packages: a steppable wall clock, a fixed id generator, and a
// scriptable in-memory backend.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe steppable wall clock for tests.
//
// Each call to Now returns the current instant; Advance moves it forward.
// This makes timestamp-dependent behavior (created_at ordering, invoice
// numbers, submission transitions) reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned to the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current instant without advancing.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Tick advances by one second, a convenient unit for ordering records
// by created_at.
func (c *Clock) Tick() time.Time {
	return c.Advance(time.Second)
}
