// Package profile holds what the system durably knows about a user:
// extracted facts and the long-term psychological profile.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solace-labs/solace/internal/log"
)

// AnonPrefix marks anonymous identities. Anonymous users never get
// durable writes.
const AnonPrefix = "anon-"

// Querier is the subset of pgxpool.Pool the store needs, plus
// transactions for the atomic psych-profile merge.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists user facts and psych profiles.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store over an open connection pool.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "profile")}
}

// IsAnonymous reports whether userID is an anonymous identity.
func IsAnonymous(userID string) bool {
	return strings.HasPrefix(userID, AnonPrefix)
}

const factsSQL = `
SELECT fact_key, fact_value, session_id
FROM user_facts
WHERE user_id = $1
  AND (session_id IS NULL OR session_id = $2)`

// Facts returns the user's facts with session-scoped values taking
// precedence over global ones sharing the same key.
func (s *Store) Facts(ctx context.Context, userID string, sessionID *uuid.UUID) (map[string]string, error) {
	rows, err := s.db.Query(ctx, factsSQL, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading user facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string]string)
	sessionScoped := make(map[string]bool)
	for rows.Next() {
		var (
			key, value string
			sid        *uuid.UUID
		)
		if err := rows.Scan(&key, &value, &sid); err != nil {
			return nil, fmt.Errorf("scanning user fact: %w", err)
		}
		if sid != nil {
			facts[key] = value
			sessionScoped[key] = true
		} else if !sessionScoped[key] {
			facts[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading user facts: %w", err)
	}
	return facts, nil
}

const upsertFactSQL = `
INSERT INTO user_facts (user_id, session_id, fact_key, fact_value, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, session_id, fact_key)
DO UPDATE SET fact_value = EXCLUDED.fact_value, updated_at = now()`

// UpsertFact writes one fact, session-scoped when sessionID is set.
// Writes for anonymous users are silently dropped.
func (s *Store) UpsertFact(ctx context.Context, userID string, sessionID *uuid.UUID, key, value string) error {
	if IsAnonymous(userID) {
		s.logger.Debug("skipping fact write for anonymous user", "key", key)
		return nil
	}
	if _, err := s.db.Exec(ctx, upsertFactSQL, userID, sessionID, key, value); err != nil {
		return fmt.Errorf("upserting fact %q: %w", key, err)
	}
	return nil
}
