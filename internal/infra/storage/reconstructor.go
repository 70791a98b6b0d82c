package storage

import (
	"context"
	"fmt"
)

// Reconstructor rebuilds a round's tallies from its audit trail.
// It only reports; the game never resumes from it.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a reconstructor over an event repository.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// Tally counts the outcomes recorded for one round.
type Tally struct {
	RoundID   string `json:"round_id"`
	Generated int    `json:"generated"`
	Defused   int    `json:"defused"`
	Failed    int    `json:"failed"`
	Exploded  int    `json:"exploded"`
	Expired   int    `json:"expired"`
	Refused   int    `json:"refused"`
	Events    int    `json:"events"`
}

// RecapEvent is one line of a round recap.
type RecapEvent struct {
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"` // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// RebuildTally replays the round's events into outcome counts.
func (r *Reconstructor) RebuildTally(ctx context.Context, roundID string) (*Tally, error) {
	records, err := r.eventRepo.ByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for round: %w", err)
	}

	t := &Tally{RoundID: roundID, Events: len(records)}
	for _, e := range records {
		switch e.EventType {
		case "MODULE_GENERATED":
			t.Generated++
		case "DEFUSED":
			t.Defused++
		case "ATTEMPT_FAILED":
			t.Failed++
		case "EXPLODED":
			t.Exploded++
		case "EXPIRED":
			t.Expired++
		case "ASSIGN_FAILED":
			t.Refused++
		}
	}
	return t, nil
}

// GenerateRecap lists the round's notable events, skipping routine queue
// traffic.
func (r *Reconstructor) GenerateRecap(ctx context.Context, roundID string) ([]RecapEvent, error) {
	records, err := r.eventRepo.ByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	var recap []RecapEvent
	for _, e := range records {
		impact := determineImpact(e.EventType)
		if impact == "" {
			continue
		}
		recap = append(recap, RecapEvent{
			Timestamp: e.Timestamp.Format("15:04:05"),
			EventType: e.EventType,
			Summary:   e.ActorID + ": " + e.Message,
			Impact:    impact,
		})
	}
	return recap, nil
}

// determineImpact classifies an event; routine events get "".
func determineImpact(eventType string) string {
	switch eventType {
	case "DEFUSED":
		return "POSITIVE"
	case "EXPLODED", "EXPIRED", "ATTEMPT_FAILED":
		return "NEGATIVE"
	case "ROUND_OVER", "SYSTEM":
		return "NEUTRAL"
	default:
		return ""
	}
}
