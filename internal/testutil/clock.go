package testutil

import "sync"

// DeterministicClock hands out logical origin_server_ts values for test
// events. It is thread-safe and can be reset so the same scenario produces
// identical timestamps on every run.
type DeterministicClock struct {
	mu sync.Mutex
	ts int64
}

// NewDeterministicClock creates a clock at 0. The first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new timestamp.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	return c.ts
}

// Current returns the last timestamp handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

// Observe moves the clock forward to ts if it is behind, so explicitly
// stamped events never collide with later Next values.
func (c *DeterministicClock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.ts {
		c.ts = ts
	}
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts = 0
}
