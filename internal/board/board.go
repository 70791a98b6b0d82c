// Package board implements the mural: the round's shared registry of pending
// and completed bomb modules plus the score, currency and round deadline.
//
// Every operation runs under a single board-wide mutex. Contention is low and
// a coarse lock keeps ownership moves trivially atomic.
package board

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
)

const actorBoard = "MURAL"

// Board owns the pending FIFO and the completed list for one round.
type Board struct {
	mu        sync.Mutex
	pending   *queue.Queue     // of *module.Module, arrival order
	completed []*module.Module // oldest first; Completed reverses
	score     int
	currency  int
	deadline  time.Time

	clk    clock.Clock
	logger *logger.Logger
}

// New creates an empty board.
func New(clk clock.Clock, log *logger.Logger) *Board {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Board{
		pending: queue.New(),
		clk:     clk,
		logger:  log,
	}
}

// Reset empties the board and starts a fresh round economy.
func (b *Board) Reset(startingCurrency int) {
	b.mu.Lock()
	b.pending = queue.New()
	b.completed = nil
	b.score = 0
	b.currency = startingCurrency
	b.deadline = time.Time{}
	b.mu.Unlock()
}

// Push appends a fresh module to the pending tail.
func (b *Board) Push(m *module.Module) {
	if m == nil {
		return
	}
	// Once queued the module may be popped and changed by its next owner, so
	// the log line is built from values read under the lock.
	b.mu.Lock()
	label := m.Label()
	b.pending.Add(m)
	b.mu.Unlock()

	b.logger.Eventf(string(events.EventTypeModuleQueued), actorBoard, "%s added", label)
}

// Requeue appends a module that came back from a failed or expired attempt.
// It goes to the tail and keeps no priority from its old position.
func (b *Board) Requeue(m *module.Module) {
	if m == nil {
		return
	}
	b.mu.Lock()
	label, timeout := m.Label(), m.TimeoutSeconds
	b.pending.Add(m)
	b.mu.Unlock()

	b.logger.Eventf(string(events.EventTypeModuleRequeued), actorBoard, "%s requeued (timeout %ds)", label, timeout)
}

// PopFront removes and returns the head of the pending list without blocking.
func (b *Board) PopFront() (*module.Module, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending.Length() == 0 {
		return nil, false
	}
	return b.pending.Remove().(*module.Module), true
}

// PopByID removes the first pending module with the given id, preserving the
// order of the rest.
func (b *Board) PopByID(id int) (*module.Module, bool) {
	return b.popFirst(func(m *module.Module) bool { return m.ID == id })
}

// PopFirstOfKind removes the first pending module of the given kind.
func (b *Board) PopFirstOfKind(kind module.Kind) (*module.Module, bool) {
	return b.popFirst(func(m *module.Module) bool { return m.Kind == kind })
}

// PopIfExpired removes module id only if it is still pending and expired at
// now. A module that was assigned and requeued since the caller looked is left
// where it is.
func (b *Board) PopIfExpired(id int, now time.Time) (*module.Module, bool) {
	return b.popFirst(func(m *module.Module) bool { return m.ID == id && m.Expired(now) })
}

func (b *Board) popFirst(match func(*module.Module) bool) (*module.Module, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Rotate the ring once: every element is taken off the head and put back
	// on the tail except the first match, which leaves the relative order of
	// the remainder untouched.
	var found *module.Module
	n := b.pending.Length()
	for i := 0; i < n; i++ {
		m := b.pending.Remove().(*module.Module)
		if found == nil && match(m) {
			found = m
			continue
		}
		b.pending.Add(m)
	}
	return found, found != nil
}

// Pending returns a read-only copy of the pending modules in queue order.
func (b *Board) Pending() []module.Module {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]module.Module, b.pending.Length())
	for i := range out {
		out[i] = *b.pending.Get(i).(*module.Module)
	}
	return out
}

// Completed returns a read-only copy of the completed modules, most recent first.
func (b *Board) Completed() []module.Module {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.completed)
	out := make([]module.Module, n)
	for i, m := range b.completed {
		out[n-1-i] = *m
	}
	return out
}

// MoveToCompleted takes ownership of a defused module.
func (b *Board) MoveToCompleted(m *module.Module) {
	if m == nil {
		return
	}
	b.mu.Lock()
	b.completed = append(b.completed, m)
	b.mu.Unlock()
}

// AddScore increments the defused counter.
func (b *Board) AddScore() {
	b.mu.Lock()
	b.score++
	b.mu.Unlock()
}

// AddCurrency adds the reward for a defused module.
func (b *Board) AddCurrency(amount int) {
	b.mu.Lock()
	b.currency += amount
	b.mu.Unlock()
}

// Score returns the number of modules defused this round.
func (b *Board) Score() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.score
}

// Currency returns the round's gold.
func (b *Board) Currency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currency
}

// SetDeadline starts the round countdown.
func (b *Board) SetDeadline(durationSeconds int) {
	b.mu.Lock()
	b.deadline = b.clk.Now().Add(time.Duration(durationSeconds) * time.Second)
	b.mu.Unlock()
}

// RemainingRoundSeconds returns max(0, deadline-now) in whole seconds. A board
// without a deadline reports zero.
func (b *Board) RemainingRoundSeconds() int {
	b.mu.Lock()
	deadline := b.deadline
	b.mu.Unlock()

	if deadline.IsZero() {
		return 0
	}
	left := deadline.Sub(b.clk.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Len returns the number of pending modules.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Length()
}

// Counts returns pending and completed sizes read under one lock.
func (b *Board) Counts() (pending, completed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Length(), len(b.completed)
}

// Destroy frees every module the board still owns.
func (b *Board) Destroy() {
	b.mu.Lock()
	pending, completed := b.pending.Length(), len(b.completed)
	b.pending = queue.New()
	b.completed = nil
	b.mu.Unlock()

	b.logger.Eventf(string(events.EventTypeSystem), actorBoard, "board destroyed (%d pending, %d completed freed)", pending, completed)
}
