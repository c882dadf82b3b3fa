package grid

import (
	"sync/atomic"
	"time"
)

// Clock stamps tile visits.
type Clock interface {
	Now() int64
}

// MilliClock returns wall-clock milliseconds, bumped so that every call
// returns a value strictly greater than the previous one.
type MilliClock struct {
	last atomic.Int64
	wall func() time.Time
}

func NewMilliClock() *MilliClock {
	return &MilliClock{wall: time.Now}
}

func (c *MilliClock) Now() int64 {
	now := c.wall().UnixMilli()
	for {
		last := c.last.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// DefaultClock is shared by every map in the process unless a Config overrides it.
var DefaultClock Clock = NewMilliClock()

// StepClock is a logical counter, useful where wall time would make results flaky.
type StepClock struct{ n atomic.Int64 }

func (c *StepClock) Now() int64 { return c.n.Add(1) }
