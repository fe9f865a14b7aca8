package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/solace-labs/solace/internal/log"
)

// ErrProfileNotFound indicates the coaching profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Querier is the subset of pgxpool.Pool the store needs. Consumer-side
// interface so tests can substitute a mock or a plain connection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides chunk and graph persistence. Safe for concurrent use;
// all state lives in PostgreSQL.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store over an open connection pool.
func NewStore(db Querier, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "knowledge")}
}

const matchKnowledgeSQL = `
SELECT id, profile_id, source_title, source_url, content, chunk_index, similarity
FROM match_knowledge($1, $2, $3, $4)`

// MatchKnowledge runs hybrid-visibility vector search: chunks private
// to profileID plus global chunks, above threshold, best first.
// profileID nil restricts the search to global chunks only.
func (s *Store) MatchKnowledge(ctx context.Context, embedding []float32, threshold float32, count int, profileID *uuid.UUID) ([]Match, error) {
	rows, err := s.db.Query(ctx, matchKnowledgeSQL,
		pgvector.NewVector(embedding), threshold, count, profileID)
	if err != nil {
		return nil, fmt.Errorf("matching knowledge: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.ProfileID, &m.SourceTitle, &m.SourceURL,
			&m.Content, &m.ChunkIndex, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

const neighborsSQL = `
SELECT id, profile_id, source_title, source_url, content, chunk_index, created_at
FROM knowledge_chunks
WHERE source_title = $1
  AND (profile_id IS NOT DISTINCT FROM $2)
  AND chunk_index BETWEEN $3 AND $4
ORDER BY chunk_index`

// Neighbors returns the chunks of the given source in the inclusive
// index window [from, to], ordered by chunk index.
func (s *Store) Neighbors(ctx context.Context, sourceTitle string, profileID *uuid.UUID, from, to int) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, neighborsSQL, sourceTitle, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading neighbor chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.SourceTitle, &c.SourceURL,
			&c.Content, &c.ChunkIndex, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning neighbor chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading neighbor chunks: %w", err)
	}
	return chunks, nil
}

const profileOwnerSQL = `
SELECT owner_id FROM profiles WHERE id = $1`

// ProfileOwner returns the owner identity of a coaching profile.
func (s *Store) ProfileOwner(ctx context.Context, profileID uuid.UUID) (string, error) {
	var owner string
	err := s.db.QueryRow(ctx, profileOwnerSQL, profileID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("profile %s: %w", profileID, ErrProfileNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("loading profile owner: %w", err)
	}
	return owner, nil
}

const addChunkSQL = `
INSERT INTO knowledge_chunks (profile_id, source_title, source_url, content, chunk_index, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

// AddChunk inserts an embedded chunk and returns its id.
func (s *Store) AddChunk(ctx context.Context, c Chunk, embedding []float32) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx, addChunkSQL,
		c.ProfileID, c.SourceTitle, c.SourceURL, c.Content, c.ChunkIndex,
		pgvector.NewVector(embedding)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting chunk: %w", err)
	}
	s.logger.Debug("added knowledge chunk",
		"id", id, "source", c.SourceTitle, "index", c.ChunkIndex)
	return id, nil
}
