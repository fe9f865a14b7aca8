// Package retrieve implements the hybrid retriever: two vector search
// scopes and a knowledge-graph branch run concurrently, results are
// merged, and each candidate's content is widened with its neighboring
// chunks before formatting.
package retrieve

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

// Sentinel is the context handed to the prompt when nothing relevant
// was found or retrieval was skipped.
const Sentinel = "No specific knowledge."

// Searcher is the vector-search surface the retriever consumes.
type Searcher interface {
	MatchKnowledge(ctx context.Context, embedding []float32, threshold float32, count int, profileID *uuid.UUID) ([]knowledge.Match, error)
	Neighbors(ctx context.Context, sourceTitle string, profileID *uuid.UUID, from, to int) ([]knowledge.Chunk, error)
}

// GraphReader is the knowledge-graph surface the retriever consumes.
type GraphReader interface {
	NodesByNames(ctx context.Context, names []string, profileID *uuid.UUID) ([]knowledge.Node, error)
	EdgesForNodes(ctx context.Context, nodeIDs []uuid.UUID) ([]knowledge.Edge, error)
	ChunksForNodes(ctx context.Context, nodeIDs []uuid.UUID) ([]knowledge.Chunk, error)
}

// Candidate is one retrieved chunk, formatted and ready for reranking.
type Candidate struct {
	Title      string
	URL        string
	Content    string
	Similarity float32

	// Block is the formatted text placed into the prompt context when
	// this candidate survives reranking.
	Block string
}

// Result is the retriever output.
type Result struct {
	Candidates   []Candidate
	GraphInsight string

	// Context is set to Sentinel when there is nothing to rerank.
	Context string
}

// Retriever runs the three retrieval branches. Safe for concurrent use.
type Retriever struct {
	store     Searcher
	graph     GraphReader
	llm       llm.Client
	fastModel string
	cfg       config.RetrievalConfig
	logger    log.Logger
}

// New creates a Retriever. fastModel is used for graph entity
// extraction only.
func New(store Searcher, graph GraphReader, client llm.Client, fastModel string, cfg config.RetrievalConfig, logger log.Logger) *Retriever {
	return &Retriever{
		store:     store,
		graph:     graph,
		llm:       client,
		fastModel: fastModel,
		cfg:       cfg,
		logger:    logger.With("component", "retrieve"),
	}
}

// Retrieve runs profile-scoped vector search, global vector search, and
// graph traversal concurrently, then merges. Branch failures are logged
// and tolerated; an empty embedding skips retrieval entirely.
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, profileID *uuid.UUID, query string) Result {
	if len(embedding) == 0 {
		return Result{Context: Sentinel}
	}

	type vectorResult struct {
		matches []knowledge.Match
		err     error
	}
	type graphResult struct {
		insight string
		chunks  []knowledge.Chunk
		err     error
	}

	profileCh := make(chan vectorResult, 1)
	globalCh := make(chan vectorResult, 1)
	graphCh := make(chan graphResult, 1)

	go func() {
		if profileID == nil {
			profileCh <- vectorResult{}
			return
		}
		m, err := r.store.MatchKnowledge(ctx, embedding,
			r.cfg.ProfileThreshold, r.cfg.ProfileCount, profileID)
		profileCh <- vectorResult{m, err}
	}()

	go func() {
		m, err := r.store.MatchKnowledge(ctx, embedding,
			r.cfg.GlobalThreshold, r.cfg.GlobalCount, nil)
		globalCh <- vectorResult{m, err}
	}()

	go func() {
		insight, chunks, err := r.traverseGraph(ctx, query, profileID)
		graphCh <- graphResult{insight, chunks, err}
	}()

	pr := <-profileCh
	if pr.err != nil {
		r.logger.Warn("profile vector search failed", "error", pr.err)
	}
	gr := <-globalCh
	if gr.err != nil {
		r.logger.Warn("global vector search failed", "error", gr.err)
	}
	kg := <-graphCh
	if kg.err != nil {
		r.logger.Warn("graph traversal failed", "error", kg.err)
	}

	// Merge both vector lists without identity dedup; the reranker
	// resolves duplicates downstream.
	merged := append(pr.matches, gr.matches...)
	for _, c := range kg.chunks {
		merged = append(merged, knowledge.Match{Chunk: c})
	}

	if len(merged) == 0 && kg.insight == "" {
		return Result{Context: Sentinel}
	}

	candidates := make([]Candidate, 0, len(merged))
	for _, m := range merged {
		content := r.expandNeighbors(ctx, m.Chunk)
		candidates = append(candidates, Candidate{
			Title:      m.SourceTitle,
			URL:        m.SourceURL,
			Content:    content,
			Similarity: m.Similarity,
			Block:      r.formatBlock(m.SourceTitle, m.SourceURL, content),
		})
	}

	return Result{Candidates: candidates, GraphInsight: kg.insight}
}

// expandNeighbors widens a hit to prev + hit + next in strict chunk
// index order. Lookup failures keep the original content.
func (r *Retriever) expandNeighbors(ctx context.Context, hit knowledge.Chunk) string {
	window, err := r.store.Neighbors(ctx, hit.SourceTitle, hit.ProfileID,
		hit.ChunkIndex-1, hit.ChunkIndex+1)
	if err != nil {
		r.logger.Debug("neighbor expansion failed", "source", hit.SourceTitle, "error", err)
		return hit.Content
	}
	if len(window) == 0 {
		return hit.Content
	}

	parts := make([]string, 0, len(window))
	seenHit := false
	for _, c := range window {
		if c.ChunkIndex == hit.ChunkIndex {
			parts = append(parts, hit.Content)
			seenHit = true
			continue
		}
		parts = append(parts, c.Content)
	}
	if !seenHit {
		return hit.Content
	}
	return strings.Join(parts, "\n")
}
