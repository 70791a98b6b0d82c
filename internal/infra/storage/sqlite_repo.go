package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	query := `
		INSERT INTO events (id, round_id, seq, timestamp, event_type, actor_id, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.RoundID, int64(event.Seq), event.Timestamp.UTC(),
		event.EventType, event.ActorID, event.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var e EventRecord
		var seq int64
		if err := rows.Scan(&e.ID, &e.RoundID, &seq, &e.Timestamp, &e.EventType, &e.ActorID, &e.Message); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		records = append(records, e)
	}
	return records, rows.Err()
}

func (r *SQLiteEventRepository) ByRound(ctx context.Context, roundID string) ([]EventRecord, error) {
	query := `SELECT id, round_id, seq, timestamp, event_type, actor_id, message FROM events WHERE round_id = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, roundID)
}

func (r *SQLiteEventRepository) ByType(ctx context.Context, roundID, eventType string) ([]EventRecord, error) {
	query := `SELECT id, round_id, seq, timestamp, event_type, actor_id, message FROM events WHERE round_id = ? AND event_type = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, roundID, eventType)
}

// ---------------------------------------------------------
// SQLiteRoundRepository
// ---------------------------------------------------------

type SQLiteRoundRepository struct {
	db *sql.DB
}

func NewSQLiteRoundRepository(db *sql.DB) *SQLiteRoundRepository {
	return &SQLiteRoundRepository{db: db}
}

func (r *SQLiteRoundRepository) Save(ctx context.Context, round RoundRecord) error {
	query := `
		INSERT INTO rounds (round_id, difficulty, score, currency, generated, pending, reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(round_id) DO UPDATE SET
			difficulty=excluded.difficulty,
			score=excluded.score,
			currency=excluded.currency,
			generated=excluded.generated,
			pending=excluded.pending,
			reason=excluded.reason,
			started_at=excluded.started_at,
			ended_at=excluded.ended_at
	`
	_, err := r.db.ExecContext(ctx, query,
		round.RoundID, round.Difficulty, round.Score, round.Currency, round.Generated,
		round.Pending, round.Reason, round.StartedAt.UTC(), round.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}

const roundColumns = `round_id, difficulty, score, currency, generated, pending, reason, started_at, ended_at`

func scanRound(row interface{ Scan(...any) error }) (RoundRecord, error) {
	var rr RoundRecord
	err := row.Scan(&rr.RoundID, &rr.Difficulty, &rr.Score, &rr.Currency, &rr.Generated,
		&rr.Pending, &rr.Reason, &rr.StartedAt, &rr.EndedAt)
	return rr, err
}

func (r *SQLiteRoundRepository) ByID(ctx context.Context, roundID string) (*RoundRecord, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE round_id = ?`
	rr, err := scanRound(r.db.QueryRowContext(ctx, query, roundID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rr, nil
}

func (r *SQLiteRoundRepository) Recent(ctx context.Context, limit int) ([]RoundRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + roundColumns + ` FROM rounds ORDER BY ended_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []RoundRecord
	for rows.Next() {
		rr, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, rr)
	}
	return rounds, rows.Err()
}
