// Package clock provides the two time sources used by the registry: a
// monotonic logical sequence for ordering ledger entries, and an injectable
// wall clock for timestamps and timeouts.
package clock

import (
	"sync/atomic"
	"time"
)

// Logical is a monotonic sequence for ordering audit records and pass
// summaries.
//
// Thread-safety: Logical is safe for concurrent use (atomic operations).
type Logical struct {
	seq atomic.Int64
}

// NewLogical creates a clock starting at 0.
func NewLogical() *Logical {
	return &Logical{}
}

// NewLogicalAt creates a clock starting at a specific sequence number.
// Used when reopening a durable ledger to resume after its last entry.
func NewLogicalAt(start int64) *Logical {
	c := &Logical{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Logical) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Logical) Current() int64 {
	return c.seq.Load()
}

// Wall is the wall-clock capability. Production code uses System; tests
// use a fake whose timers fire on manual Advance.
type Wall interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was stopped.
	Stop() bool
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
