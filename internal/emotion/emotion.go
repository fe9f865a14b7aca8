// Package emotion records per-turn emotional events and derives a
// coarse trend over the recent window.
package emotion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solace-labs/solace/internal/log"
)

// Trend labels over the recent event window.
const (
	TrendDeclining = "declining"
	TrendImproving = "improving"
	TrendStable    = "stable"
)

// Event is one emotional observation, append-only.
type Event struct {
	ID           uuid.UUID
	UserID       string
	SessionID    *uuid.UUID
	Category     string
	Intensity    float64
	UrgencyLevel int
	CrisisFlag   bool
	CreatedAt    time.Time
}

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists emotional events.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store over an open connection pool.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "emotion")}
}

const recordSQL = `
INSERT INTO emotional_events (user_id, session_id, emotion, intensity, urgency_level, is_crisis)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`

// Record appends an event. Events are never updated or deleted.
func (s *Store) Record(ctx context.Context, e Event) (Event, error) {
	err := s.db.QueryRow(ctx, recordSQL,
		e.UserID, e.SessionID, e.Category, e.Intensity, e.UrgencyLevel, e.CrisisFlag,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("recording emotional event: %w", err)
	}
	return e, nil
}

const recentSQL = `
SELECT id, user_id, session_id, emotion, intensity, urgency_level, is_crisis, created_at
FROM emotional_events
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

// Recent returns up to n most recent events for the user, newest first.
func (s *Store) Recent(ctx context.Context, userID string, n int) ([]Event, error) {
	rows, err := s.db.Query(ctx, recentSQL, userID, n)
	if err != nil {
		return nil, fmt.Errorf("loading recent emotional events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.Category,
			&e.Intensity, &e.UrgencyLevel, &e.CrisisFlag, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning emotional event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading emotional events: %w", err)
	}
	return events, nil
}

// trendDelta is the minimum average-intensity shift between the older
// and newer half of the window before the trend leaves "stable".
const trendDelta = 0.15

// Trend compares average intensity of the newer half of events against
// the older half. events must be ordered newest first, as Recent
// returns them. Fewer than 4 events is always stable.
func Trend(events []Event) string {
	if len(events) < 4 {
		return TrendStable
	}

	mid := len(events) / 2
	newer := averageIntensity(events[:mid])
	older := averageIntensity(events[mid:])

	switch {
	case newer-older > trendDelta:
		return TrendDeclining
	case older-newer > trendDelta:
		return TrendImproving
	default:
		return TrendStable
	}
}

func averageIntensity(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, e := range events {
		sum += e.Intensity
	}
	return sum / float64(len(events))
}
