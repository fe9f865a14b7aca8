package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/llm"
)

type extractedEntities struct {
	Entities []string `json:"entities"`
}

const extractSystem = `Extract the 1 to 3 most central named concepts,
conditions, or techniques from the user's message, as they would appear
in a coaching knowledge base (e.g. "burnout", "imposter syndrome").
Return an empty list if nothing concrete is mentioned.`

// traverseGraph extracts entities from the query, looks them up in the
// graph, and renders the surrounding relations as a short insight block
// plus the chunks linked to the matched nodes.
func (r *Retriever) traverseGraph(ctx context.Context, query string, profileID *uuid.UUID) (string, []knowledge.Chunk, error) {
	var ents extractedEntities
	if err := r.llm.GenerateData(ctx, llm.Request{
		Model:  r.fastModel,
		System: extractSystem,
		Prompt: query,
	}, &ents); err != nil {
		return "", nil, fmt.Errorf("extracting entities: %w", err)
	}
	if len(ents.Entities) == 0 {
		return "", nil, nil
	}
	if len(ents.Entities) > 3 {
		ents.Entities = ents.Entities[:3]
	}

	nodes, err := r.graph.NodesByNames(ctx, ents.Entities, profileID)
	if err != nil {
		return "", nil, fmt.Errorf("looking up nodes: %w", err)
	}
	if len(nodes) == 0 {
		return "", nil, nil
	}

	nodeIDs := make([]uuid.UUID, len(nodes))
	byID := make(map[uuid.UUID]string, len(nodes))
	for i, n := range nodes {
		nodeIDs[i] = n.ID
		byID[n.ID] = n.Name
	}

	edges, err := r.graph.EdgesForNodes(ctx, nodeIDs)
	if err != nil {
		return "", nil, fmt.Errorf("loading edges: %w", err)
	}

	var b strings.Builder
	for _, e := range edges {
		src, okSrc := byID[e.SourceID]
		dst, okDst := byID[e.TargetID]
		if !okSrc {
			src = "related concept"
		}
		if !okDst {
			dst = "related concept"
		}
		fmt.Fprintf(&b, "- %s %s %s\n", src, e.Relation, dst)
	}

	chunks, err := r.graph.ChunksForNodes(ctx, nodeIDs)
	if err != nil {
		return "", nil, fmt.Errorf("loading linked chunks: %w", err)
	}

	return strings.TrimRight(b.String(), "\n"), chunks, nil
}
