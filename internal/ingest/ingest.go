// Package ingest loads source documents into the knowledge base:
// split into chunks, embed, store with sequential chunk indices so
// neighbor expansion can reassemble context windows at query time.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/log"
)

// ChunkStore is the storage surface the ingestor needs.
type ChunkStore interface {
	AddChunk(ctx context.Context, c knowledge.Chunk, embedding []float32) (uuid.UUID, error)
}

// Embedder turns texts into vectors. Satisfied by llm.Client.
type Embedder interface {
	Embed(ctx context.Context, texts ...string) ([][]float32, error)
}

// Document is one source to ingest. ProfileID nil makes the chunks
// globally visible; set, they are private to that coaching profile.
type Document struct {
	ProfileID *uuid.UUID
	Title     string
	URL       string
	Content   string
}

// Ingestor writes embedded documents into the knowledge store.
type Ingestor struct {
	store    ChunkStore
	embedder Embedder
	logger   log.Logger
}

// New creates an Ingestor.
func New(store ChunkStore, embedder Embedder, logger log.Logger) *Ingestor {
	return &Ingestor{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestDocument splits, embeds, and stores one document. Returns the
// number of chunks written. Embedding happens in a single batched call.
func (i *Ingestor) IngestDocument(ctx context.Context, doc Document) (int, error) {
	if doc.Title == "" {
		return 0, fmt.Errorf("document title is required")
	}

	parts := SplitText(doc.Content, MaxChunkSize)
	if len(parts) == 0 {
		return 0, fmt.Errorf("document %q has no content", doc.Title)
	}

	vectors, err := i.embedder.Embed(ctx, parts...)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", doc.Title, err)
	}
	if len(vectors) != len(parts) {
		return 0, fmt.Errorf("embedding %q: got %d vectors for %d chunks", doc.Title, len(vectors), len(parts))
	}

	for idx, part := range parts {
		_, err := i.store.AddChunk(ctx, knowledge.Chunk{
			ProfileID:   doc.ProfileID,
			SourceTitle: doc.Title,
			SourceURL:   doc.URL,
			Content:     part,
			ChunkIndex:  idx,
		}, vectors[idx])
		if err != nil {
			return idx, fmt.Errorf("storing chunk %d of %q: %w", idx, doc.Title, err)
		}
	}

	i.logger.Info("ingested document", "title", doc.Title, "chunks", len(parts))
	return len(parts), nil
}
