// Package knowledge stores coaching content as embedded chunks plus a
// lightweight entity graph, both in PostgreSQL with pgvector. Chunks
// belong to a coach profile or to the shared global pool (nil profile).
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one embedded fragment of a knowledge source. ChunkIndex is
// the fragment's position within its source document; neighbor
// expansion uses it to pull adjacent context.
type Chunk struct {
	ID          uuid.UUID
	ProfileID   *uuid.UUID // nil = globally visible
	SourceTitle string
	SourceURL   string
	Content     string
	ChunkIndex  int
	CreatedAt   time.Time
}

// Match is a chunk returned by vector search with its cosine similarity
// to the query embedding.
type Match struct {
	Chunk
	Similarity float32
}

// Node is a named entity in the knowledge graph.
type Node struct {
	ID        uuid.UUID
	ProfileID *uuid.UUID
	Name      string
	Kind      string
}

// Edge is a typed relation between two graph nodes.
type Edge struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	Relation string
}
