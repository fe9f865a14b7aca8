package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

type mockSearcher struct {
	profileMatches []knowledge.Match
	globalMatches  []knowledge.Match
	matchErr       error
	neighborWindow []knowledge.Chunk
	neighborErr    error
}

func (m *mockSearcher) MatchKnowledge(_ context.Context, _ []float32, _ float32, _ int, profileID *uuid.UUID) ([]knowledge.Match, error) {
	if m.matchErr != nil {
		return nil, m.matchErr
	}
	if profileID != nil {
		return m.profileMatches, nil
	}
	return m.globalMatches, nil
}

func (m *mockSearcher) Neighbors(_ context.Context, _ string, _ *uuid.UUID, _, _ int) ([]knowledge.Chunk, error) {
	if m.neighborErr != nil {
		return nil, m.neighborErr
	}
	return m.neighborWindow, nil
}

type mockGraph struct {
	nodes  []knowledge.Node
	edges  []knowledge.Edge
	chunks []knowledge.Chunk
	err    error
}

func (m *mockGraph) NodesByNames(_ context.Context, _ []string, _ *uuid.UUID) ([]knowledge.Node, error) {
	return m.nodes, m.err
}

func (m *mockGraph) EdgesForNodes(_ context.Context, _ []uuid.UUID) ([]knowledge.Edge, error) {
	return m.edges, m.err
}

func (m *mockGraph) ChunksForNodes(_ context.Context, _ []uuid.UUID) ([]knowledge.Chunk, error) {
	return m.chunks, m.err
}

type mockLLM struct {
	dataJSON string
	dataErr  error
}

func (m *mockLLM) GenerateText(_ context.Context, _ llm.Request) (string, error) {
	return "", errors.New("not used")
}

func (m *mockLLM) GenerateData(_ context.Context, _ llm.Request, out any) error {
	if m.dataErr != nil {
		return m.dataErr
	}
	return json.Unmarshal([]byte(m.dataJSON), out)
}

func (m *mockLLM) GenerateStream(_ context.Context, _ llm.Request, _ llm.StreamFunc) (string, error) {
	return "", errors.New("not used")
}

func (m *mockLLM) Embed(_ context.Context, _ ...string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func newRetriever(s Searcher, g GraphReader, l llm.Client) *Retriever {
	return New(s, g, l, "fast-model", config.Default().Retrieval, log.NewNop())
}

func match(title string, sim float32, idx int) knowledge.Match {
	return knowledge.Match{
		Chunk: knowledge.Chunk{
			SourceTitle: title,
			SourceURL:   "https://example.com/" + title,
			Content:     "content of " + title,
			ChunkIndex:  idx,
		},
		Similarity: sim,
	}
}

func TestRetrieveEmptyEmbeddingShortCircuits(t *testing.T) {
	r := newRetriever(&mockSearcher{}, &mockGraph{}, &mockLLM{dataErr: errors.New("should not be called")})

	res := r.Retrieve(context.Background(), nil, nil, "q")

	assert.Equal(t, Sentinel, res.Context)
	assert.Empty(t, res.Candidates)
}

func TestRetrieveZeroResultsReturnsSentinel(t *testing.T) {
	r := newRetriever(&mockSearcher{}, &mockGraph{}, &mockLLM{dataJSON: `{"entities":[]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	assert.Equal(t, Sentinel, res.Context)
}

func TestRetrieveMergesBothScopesWithoutDedup(t *testing.T) {
	shared := match("Shared Lesson", 0.6, 0)
	s := &mockSearcher{
		profileMatches: []knowledge.Match{shared, match("Private Lesson", 0.9, 0)},
		globalMatches:  []knowledge.Match{shared},
	}
	profileID := uuid.New()
	r := newRetriever(s, &mockGraph{}, &mockLLM{dataJSON: `{"entities":[]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, &profileID, "q")

	// The shared hit appears twice: dedup is the reranker's job.
	require.Len(t, res.Candidates, 3)
	assert.Empty(t, res.Context)
}

func TestRetrieveToleratesBranchFailure(t *testing.T) {
	s := &mockSearcher{matchErr: errors.New("db down")}
	g := &mockGraph{
		nodes: []knowledge.Node{{ID: uuid.New(), Name: "Burnout"}},
		chunks: []knowledge.Chunk{{
			SourceTitle: "Burnout Basics",
			Content:     "graph sourced",
		}},
	}
	r := newRetriever(s, g, &mockLLM{dataJSON: `{"entities":["burnout"]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Burnout Basics", res.Candidates[0].Title)
}

func TestNeighborExpansionStrictIndexOrder(t *testing.T) {
	hit := match("Handbook", 0.8, 2)
	s := &mockSearcher{
		globalMatches: []knowledge.Match{hit},
		neighborWindow: []knowledge.Chunk{
			{SourceTitle: "Handbook", Content: "part one", ChunkIndex: 1},
			{SourceTitle: "Handbook", Content: "ignored hit row", ChunkIndex: 2},
			{SourceTitle: "Handbook", Content: "part three", ChunkIndex: 3},
		},
	}
	r := newRetriever(s, &mockGraph{}, &mockLLM{dataJSON: `{"entities":[]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "part one\ncontent of Handbook\npart three", res.Candidates[0].Content)
}

func TestNeighborExpansionFailureKeepsOriginal(t *testing.T) {
	hit := match("Handbook", 0.8, 2)
	s := &mockSearcher{
		globalMatches: []knowledge.Match{hit},
		neighborErr:   errors.New("lookup failed"),
	}
	r := newRetriever(s, &mockGraph{}, &mockLLM{dataJSON: `{"entities":[]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "content of Handbook", res.Candidates[0].Content)
}

func TestFormatHighRelevanceSuppressedForGenericLabels(t *testing.T) {
	s := &mockSearcher{
		globalMatches: []knowledge.Match{
			match("Specific Lesson", 0.9, 0),
			match("General Knowledge Collection", 0.5, 0),
		},
	}
	r := newRetriever(s, &mockGraph{}, &mockLLM{dataJSON: `{"entities":[]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	require.Len(t, res.Candidates, 2)
	assert.Contains(t, res.Candidates[0].Block, "[HIGH RELEVANCE]\n[SOURCE: Specific Lesson")
	assert.NotContains(t, res.Candidates[1].Block, "[HIGH RELEVANCE]")
	assert.Contains(t, res.Candidates[1].Block, "[SOURCE: General Knowledge Collection")
}

func TestGraphInsightRendersRelations(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := &mockGraph{
		nodes: []knowledge.Node{
			{ID: a, Name: "Burnout"},
			{ID: b, Name: "Recovery"},
		},
		edges: []knowledge.Edge{{SourceID: a, TargetID: b, Relation: "treated_by"}},
	}
	r := newRetriever(&mockSearcher{}, g, &mockLLM{dataJSON: `{"entities":["burnout","recovery"]}`})

	res := r.Retrieve(context.Background(), []float32{0.1}, nil, "q")

	assert.Equal(t, "- Burnout treated_by Recovery", res.GraphInsight)
}
