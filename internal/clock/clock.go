package clock

import "sync/atomic"

// Clock reports machine time as a monotonically increasing instruction count.
type Clock interface {
	Now() int64
}

// Func adapts a plain function to Clock. Handy in tests for determinism.
type Func func() int64

// Now returns f().
func (f Func) Now() int64 { return f() }

// Counter is the machine's instruction counter. The CPU advances it after
// every executed batch of instructions; the kernel only reads it.
type Counter struct {
	ticks atomic.Int64
}

// Now returns the current instruction count.
func (c *Counter) Now() int64 { return c.ticks.Load() }

// Advance moves the counter forward by n instructions and returns the new
// value. Negative n is ignored so the counter never goes back.
func (c *Counter) Advance(n int64) int64 {
	if n <= 0 {
		return c.ticks.Load()
	}
	return c.ticks.Add(n)
}

// Set overrides the counter, used when restoring a machine or in tests.
func (c *Counter) Set(value int64) { c.ticks.Store(value) }

// New returns a counter starting at start.
func New(start int64) *Counter {
	ret := &Counter{}
	ret.ticks.Store(start)
	return ret
}
