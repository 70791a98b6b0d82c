package pool

import (
	"fmt"
	"sync"

	"github.com/MRamiBalles/KeepSolving/internal/domain/fault"
)

// Benches is the fixed set of workbenches. A bench is held by at most one
// worker at a time; the busy count never exceeds the number of benches.
type Benches struct {
	mu     sync.Mutex
	cond   *sync.Cond
	busy   []bool
	closed bool
}

// NewBenches creates n free benches.
func NewBenches(n int) *Benches {
	b := &Benches{busy: make([]bool, n)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Count returns the number of benches.
func (b *Benches) Count() int {
	return len(b.busy)
}

// TryAcquire takes the lowest-numbered free bench without blocking.
func (b *Benches) TryAcquire() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return -1, false
	}
	return b.takeFreeLocked()
}

// TryAcquireID takes a specific bench without blocking.
func (b *Benches) TryAcquireID(id int) error {
	if id < 0 || id >= len(b.busy) {
		return fmt.Errorf("bench %d: %w", id, fault.ErrNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.busy[id] {
		return fmt.Errorf("bench %d: %w", id, fault.ErrResourceBusy)
	}
	b.busy[id] = true
	return nil
}

// Acquire blocks until a bench is free. It returns false once the benches
// are closed.
func (b *Benches) Acquire() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.closed {
		if id, ok := b.takeFreeLocked(); ok {
			return id, true
		}
		b.cond.Wait()
	}
	return -1, false
}

// Release frees a bench and wakes one waiter. Releasing a free or unknown
// bench is a no-op.
func (b *Benches) Release(id int) {
	if id < 0 || id >= len(b.busy) {
		return
	}
	b.mu.Lock()
	if b.busy[id] {
		b.busy[id] = false
		b.cond.Signal()
	}
	b.mu.Unlock()
}

// Busy returns a copy of the busy flags.
func (b *Benches) Busy() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]bool, len(b.busy))
	copy(out, b.busy)
	return out
}

// BusyCount returns how many benches are held.
func (b *Benches) BusyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, busy := range b.busy {
		if busy {
			n++
		}
	}
	return n
}

// Close wakes every blocked Acquire. Further acquisitions fail.
func (b *Benches) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *Benches) takeFreeLocked() (int, bool) {
	for i, busy := range b.busy {
		if !busy {
			b.busy[i] = true
			return i, true
		}
	}
	return -1, false
}
