// Package session persists conversations: sessions and their ordered
// messages. Citations ride along as assistant-message metadata rather
// than their own table.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/rerank"
)

// Message roles, matching the messages.role check constraint.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one stored conversation message.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      string
	Content   string
	Citations []rerank.Citation
	CreatedAt time.Time
}

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists sessions and messages.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store over an open connection pool.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "session")}
}

const ensureSessionSQL = `
INSERT INTO sessions (id, user_id, profile_id)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`

// Ensure creates the session row if it does not exist yet.
func (s *Store) Ensure(ctx context.Context, sessionID uuid.UUID, userID string, profileID *uuid.UUID) error {
	if _, err := s.db.Exec(ctx, ensureSessionSQL, sessionID, userID, profileID); err != nil {
		return fmt.Errorf("ensuring session: %w", err)
	}
	return nil
}

const historySQL = `
SELECT id, session_id, role, content, metadata, created_at
FROM (
    SELECT id, session_id, role, content, metadata, created_at
    FROM messages
    WHERE session_id = $1
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at ASC`

type messageMetadata struct {
	Citations []rerank.Citation `json:"citations,omitempty"`
}

// History returns the last limit messages of the session in
// chronological order.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, historySQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading session history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m   Message
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		var meta messageMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			s.logger.Warn("unreadable message metadata", "message_id", m.ID, "error", err)
		} else {
			m.Citations = meta.Citations
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session history: %w", err)
	}
	return msgs, nil
}

const insertMessageSQL = `
INSERT INTO messages (session_id, role, content, metadata)
VALUES ($1, $2, $3, $4)`

const touchSessionSQL = `
UPDATE sessions SET updated_at = now() WHERE id = $1`

// AppendTurn stores a completed user/assistant exchange in one
// transaction, embedding citations into the assistant message metadata.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string, citations []rerank.Citation) error {
	meta, err := json.Marshal(messageMetadata{Citations: citations})
	if err != nil {
		return fmt.Errorf("encoding citations: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append turn: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertMessageSQL, sessionID, RoleUser, userText, []byte("{}")); err != nil {
		return fmt.Errorf("storing user message: %w", err)
	}
	if _, err := tx.Exec(ctx, insertMessageSQL, sessionID, RoleModel, assistantText, meta); err != nil {
		return fmt.Errorf("storing assistant message: %w", err)
	}
	if _, err := tx.Exec(ctx, touchSessionSQL, sessionID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}
