package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a DeterministicClock: 1700000000000 ms.
var Epoch = time.UnixMilli(1700000000000).UTC()

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every read.
//
// Implements engine.Clock. Unlike engine.SystemClock it can be reset, so the
// same scenario run twice stamps identical record timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	reads int64
}

// NewDeterministicClock creates a clock starting at Epoch that advances one
// millisecond per read.
//
// The first call to Now() returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(Epoch, time.Millisecond)
}

// NewDeterministicClockAt creates a clock starting at start that advances by
// step per read. A non-positive step freezes the clock.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	if step < 0 {
		step = 0
	}
	return &DeterministicClock{start: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.start.Add(time.Duration(c.reads) * c.step)
	c.reads++
	return now
}

// Peek returns the time the next Now() will return, without advancing.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.reads) * c.step)
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = 0
}
