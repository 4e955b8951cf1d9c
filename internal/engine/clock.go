package engine

import "sync/atomic"

// Clock stamps requests with increasing sequence numbers so logs and traces
// show the order in which a transaction issued them. Only the loop calls
// Next; the counter is atomic so Current may be read from tests and
// diagnostics on other goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new stamp.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last stamp handed out, 0 before the first.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
