package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const nodesByNamesSQL = `
SELECT id, profile_id, name, kind
FROM graph_nodes
WHERE lower(name) = ANY($1)
  AND (profile_id IS NULL OR profile_id IS NOT DISTINCT FROM $2)`

// NodesByNames looks up graph nodes by case-insensitive name among the
// global nodes and those belonging to profileID.
func (s *Store) NodesByNames(ctx context.Context, names []string, profileID *uuid.UUID) ([]Node, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	rows, err := s.db.Query(ctx, nodesByNamesSQL, lowered, profileID)
	if err != nil {
		return nil, fmt.Errorf("looking up graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.ProfileID, &n.Name, &n.Kind); err != nil {
			return nil, fmt.Errorf("scanning graph node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading graph nodes: %w", err)
	}
	return nodes, nil
}

const edgesForNodesSQL = `
SELECT id, source_id, target_id, relation
FROM graph_edges
WHERE source_id = ANY($1) OR target_id = ANY($1)`

// EdgesForNodes returns every edge touching any of the given nodes.
func (s *Store) EdgesForNodes(ctx context.Context, nodeIDs []uuid.UUID) ([]Edge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, edgesForNodesSQL, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("looking up graph edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relation); err != nil {
			return nil, fmt.Errorf("scanning graph edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading graph edges: %w", err)
	}
	return edges, nil
}

const chunksForNodesSQL = `
SELECT DISTINCT kc.id, kc.profile_id, kc.source_title, kc.source_url,
       kc.content, kc.chunk_index, kc.created_at
FROM knowledge_chunks kc
JOIN graph_node_chunks gnc ON gnc.chunk_id = kc.id
WHERE gnc.node_id = ANY($1)
ORDER BY kc.source_title, kc.chunk_index`

// ChunksForNodes returns the chunks linked to any of the given nodes.
func (s *Store) ChunksForNodes(ctx context.Context, nodeIDs []uuid.UUID) ([]Chunk, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, chunksForNodesSQL, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for nodes: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.SourceTitle, &c.SourceURL,
			&c.Content, &c.ChunkIndex, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning linked chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading linked chunks: %w", err)
	}
	return chunks, nil
}

const linkNodeChunkSQL = `
INSERT INTO graph_node_chunks (node_id, chunk_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

// LinkNodeChunk associates a graph node with a chunk that mentions it.
func (s *Store) LinkNodeChunk(ctx context.Context, nodeID, chunkID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, linkNodeChunkSQL, nodeID, chunkID); err != nil {
		return fmt.Errorf("linking node to chunk: %w", err)
	}
	return nil
}
