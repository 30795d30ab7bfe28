// Package budget implements the shared memory-accounting budget that
// dictionary sample buffers are charged against.
package budget

import (
	"errors"
	"sync/atomic"
)

// ErrBudgetExceeded is returned by TryCharge when the charge would exceed
// capacity. Nothing is reserved in that case.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// Budget is a lock-free charge/release counter shared by every concurrent
// file build. A capacity of zero means unlimited.
type Budget struct {
	capacity uint64
	used     atomic.Uint64
	peak     atomic.Uint64
	rejected atomic.Uint64
}

// New returns an empty budget of capacity bytes. Zero means unlimited.
func New(capacity uint64) *Budget {
	return &Budget{capacity: capacity}
}

// TryCharge reserves n bytes if they fit.
func (b *Budget) TryCharge(n uint64) error {
	for {
		used := b.used.Load()
		next := used + n
		if next < used || (b.capacity > 0 && next > b.capacity) {
			b.rejected.Add(1)
			return ErrBudgetExceeded
		}
		if b.used.CompareAndSwap(used, next) {
			b.recordPeak(next)
			return nil
		}
	}
}

// Release returns n bytes. Releasing more than is charged clamps at zero.
func (b *Budget) Release(n uint64) {
	for {
		used := b.used.Load()
		next := uint64(0)
		if n < used {
			next = used - n
		}
		if b.used.CompareAndSwap(used, next) {
			return
		}
	}
}

func (b *Budget) recordPeak(v uint64) {
	for {
		p := b.peak.Load()
		if v <= p || b.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

func (b *Budget) Used() uint64     { return b.used.Load() }
func (b *Budget) Capacity() uint64 { return b.capacity }
func (b *Budget) Peak() uint64     { return b.peak.Load() }

// Rejected counts failed charge attempts.
func (b *Budget) Rejected() uint64 { return b.rejected.Load() }
