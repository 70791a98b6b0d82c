// Package storage provides the round audit ledger.
// It records what happened in each round; nothing in the game ever reads it
// back to resume play.
package storage

import (
	"context"
	"time"
)

// EventRecord mirrors events.GameEvent for persistence.
// The engine does NOT import this package; the persister adapter converts.
type EventRecord struct {
	ID        string    `json:"id" db:"id"`
	RoundID   string    `json:"round_id" db:"round_id"`
	Seq       uint64    `json:"seq" db:"seq"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	EventType string    `json:"event_type" db:"event_type"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	Message   string    `json:"message" db:"message"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds an event to the ledger.
	Append(ctx context.Context, event EventRecord) error

	// ByRound retrieves every event of a round in sequence order.
	ByRound(ctx context.Context, roundID string) ([]EventRecord, error)

	// ByType retrieves the events of one type within a round.
	ByType(ctx context.Context, roundID, eventType string) ([]EventRecord, error)
}

// RoundRecord is the stored outcome of a round.
type RoundRecord struct {
	RoundID    string    `json:"round_id" db:"round_id"`
	Difficulty string    `json:"difficulty" db:"difficulty"`
	Score      int       `json:"score" db:"score"`
	Currency   int       `json:"currency" db:"currency"`
	Generated  int       `json:"generated" db:"generated"`
	Pending    int       `json:"pending" db:"pending"`
	Reason     string    `json:"reason" db:"reason"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	EndedAt    time.Time `json:"ended_at" db:"ended_at"`
}

// RoundRepository defines the interface for round results.
type RoundRepository interface {
	// Save inserts or replaces a round result.
	Save(ctx context.Context, round RoundRecord) error

	// ByID retrieves one round, or nil when unknown.
	ByID(ctx context.Context, roundID string) (*RoundRecord, error)

	// Recent retrieves the latest rounds, newest first.
	Recent(ctx context.Context, limit int) ([]RoundRecord, error)
}
