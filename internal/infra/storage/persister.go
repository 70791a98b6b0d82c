package storage

import (
	"context"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/events"
)

// EventPersister adapts an EventRepository to events.EventPersister.
type EventPersister struct {
	repo    EventRepository
	timeout time.Duration
}

// NewEventPersister wraps repo. Each append gets its own timeout.
func NewEventPersister(repo EventRepository, timeout time.Duration) *EventPersister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventPersister{repo: repo, timeout: timeout}
}

// Append translates a game event into a ledger row.
func (p *EventPersister) Append(event events.GameEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.repo.Append(ctx, EventRecord{
		ID:        event.ID,
		RoundID:   event.RoundID,
		Seq:       event.Seq,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		Message:   event.Message,
	})
}
