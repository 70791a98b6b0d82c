// Package events provides the round's event log: a bounded ring of gameplay
// events that any goroutine may append to and the render layer reads back.
// Once the ring is full the oldest entries are silently overwritten.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
)

// DefaultCapacity matches the panel's log history.
const DefaultCapacity = 256

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeSystem          EventType = "SYSTEM"
	EventTypeModuleGenerated EventType = "MODULE_GENERATED"
	EventTypeModuleQueued    EventType = "MODULE_QUEUED"
	EventTypeModuleRequeued  EventType = "MODULE_REQUEUED"
	EventTypeAssigned        EventType = "ASSIGNED"
	EventTypeAssignFailed    EventType = "ASSIGN_FAILED"
	EventTypeBenchAcquired   EventType = "BENCH_ACQUIRED"
	EventTypeDefused         EventType = "DEFUSED"
	EventTypeAttemptFailed   EventType = "ATTEMPT_FAILED"
	EventTypeExploded        EventType = "EXPLODED"
	EventTypeExpired         EventType = "EXPIRED"
	EventTypeCommand         EventType = "COMMAND"
	EventTypeCommandRejected EventType = "COMMAND_REJECTED"
	EventTypeRoundOver       EventType = "ROUND_OVER"
)

// GameEvent is an immutable record of something that happened in the round.
type GameEvent struct {
	Seq       uint64    `json:"seq"`
	ID        string    `json:"id"`
	RoundID   string    `json:"round_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"` // GEN, WATCHER, COORD, T0, ...
	Message   string    `json:"message"`
}

// String renders the event the way the panel shows it: "[15:04:05] message".
func (e GameEvent) String() string {
	return "[" + e.Timestamp.Format("15:04:05") + "] " + e.Message
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// Log is the in-memory bounded ring of game events.
type Log struct {
	mu      sync.RWMutex
	entries []GameEvent
	next    int // slot the next append writes to
	full    bool
	seq     uint64
	roundID string
	clk     clock.Clock

	persister   EventPersister
	persistCh   chan GameEvent
	persistDone chan struct{}
	closeOnce   sync.Once
	dropped     atomic.Int64
	failed      atomic.Int64
}

// NewLog creates a ring of the given capacity. A nil persister keeps the log
// purely in memory.
func NewLog(capacity int, clk clock.Clock, persister EventPersister) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	l := &Log{
		entries:   make([]GameEvent, capacity),
		clk:       clk,
		persister: persister,
	}
	if persister != nil {
		l.persistCh = make(chan GameEvent, capacity)
		l.persistDone = make(chan struct{})
		go l.drain(l.persistCh)
	}
	return l
}

// SetRoundID tags subsequent events with the round they belong to.
func (l *Log) SetRoundID(id string) {
	l.mu.Lock()
	l.roundID = id
	l.mu.Unlock()
}

// Append records a new event, overwriting the oldest one when the ring is full.
func (l *Log) Append(eventType EventType, actorID, message string) GameEvent {
	l.mu.Lock()
	l.seq++
	event := GameEvent{
		Seq:       l.seq,
		ID:        uuid.NewString(),
		RoundID:   l.roundID,
		Timestamp: l.clk.Now(),
		Type:      eventType,
		ActorID:   actorID,
		Message:   message,
	}
	l.entries[l.next] = event
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	if l.persistCh != nil {
		select {
		case l.persistCh <- event:
		default:
			l.dropped.Add(1)
		}
	}
	l.mu.Unlock()
	return event
}

// Record satisfies logger.Recorder so logger.Event lines land in the ring.
func (l *Log) Record(eventType, actorID, details string) {
	l.Append(EventType(eventType), actorID, details)
}

// Snapshot returns the retained events, oldest first. The slice is a copy.
func (l *Log) Snapshot() []GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orderedLocked()
}

// Tail returns up to n of the most recent events, oldest first.
func (l *Log) Tail(n int) []GameEvent {
	all := l.Snapshot()
	if n <= 0 {
		return nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Since returns retained events whose sequence number is greater than seq.
func (l *Log) Since(seq uint64) []GameEvent {
	all := l.Snapshot()
	for i, e := range all {
		if e.Seq > seq {
			return all[i:]
		}
	}
	return nil
}

// Len returns how many events are currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}

// Capacity returns the ring size.
func (l *Log) Capacity() int {
	return len(l.entries)
}

// PersistDropped counts events that could not be handed to the persister
// because its buffer was full.
func (l *Log) PersistDropped() int64 {
	return l.dropped.Load()
}

// PersistFailed counts persister errors.
func (l *Log) PersistFailed() int64 {
	return l.failed.Load()
}

// Close flushes pending events to the persister and stops the drain
// goroutine. Appends after Close are kept in memory only.
func (l *Log) Close() {
	if l.persister == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		ch := l.persistCh
		l.persistCh = nil
		l.mu.Unlock()
		close(ch)
		<-l.persistDone
	})
}

func (l *Log) orderedLocked() []GameEvent {
	if !l.full {
		out := make([]GameEvent, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]GameEvent, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

func (l *Log) drain(ch <-chan GameEvent) {
	defer close(l.persistDone)
	for event := range ch {
		if err := l.persister.Append(event); err != nil {
			l.failed.Add(1)
		}
	}
}
