package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps every run record.
//
// Each record gets a strictly increasing seq from Next. Ordering never
// depends on wall time, so a rerun with the same run ID against a fresh
// store yields identical seqs.
//
// Clock is safe for concurrent use, although a Runner only calls it from
// the goroutine executing Run.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
// The runner uses it to continue from the last seq in the store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
