// Package rerank narrows the merged candidate list to the few chunks
// actually worth prompt space, using one cheap structured LLM call.
package rerank

import (
	"context"
	"fmt"
	"strings"

	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/retrieve"
)

// maxSelected bounds how many candidates survive reranking.
const maxSelected = 5

// Citation names a source chunk that contributed to the final context.
// Similarity is carried through from retrieval unchanged.
type Citation struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float32 `json:"similarity"`
}

// Selection is the rerank output.
type Selection struct {
	// Context is the final prompt context: graph insight block (if any)
	// above the selected chunk blocks.
	Context string

	// Chosen holds the surviving candidates in rank order.
	Chosen []retrieve.Candidate
}

// Citations returns one citation per chosen candidate, preserving the
// original retrieval similarity exactly.
func (s Selection) Citations() []Citation {
	if len(s.Chosen) == 0 {
		return nil
	}
	cites := make([]Citation, len(s.Chosen))
	for i, c := range s.Chosen {
		cites[i] = Citation{Title: c.Title, URL: c.URL, Similarity: c.Similarity}
	}
	return cites
}

type indexSelection struct {
	Indices []int `json:"indices"`
}

const rerankSystem = `You are selecting reference material for a coaching
conversation. Given a user message and numbered excerpts, return the
indices of the 3 to 5 excerpts most useful for answering, most useful
first. Return only indices that appear in the list.`

// Reranker selects candidates with a fast model. Safe for concurrent use.
type Reranker struct {
	llm       llm.Client
	fastModel string
	logger    log.Logger
}

// New creates a Reranker using fastModel for index selection.
func New(client llm.Client, fastModel string, logger log.Logger) *Reranker {
	return &Reranker{
		llm:       client,
		fastModel: fastModel,
		logger:    logger.With("component", "rerank"),
	}
}

// Rerank asks the model for index positions into candidates.
// Out-of-range and duplicate indices are filtered; if nothing valid
// remains (or the call fails) the full candidate list is kept unranked.
// An empty candidate list yields the graph insight alone, or the
// retrieval sentinel when there is no insight either.
func (r *Reranker) Rerank(ctx context.Context, query string, res retrieve.Result) Selection {
	if res.Context != "" {
		return Selection{Context: res.Context}
	}
	if len(res.Candidates) == 0 {
		if res.GraphInsight != "" {
			return Selection{Context: res.GraphInsight}
		}
		return Selection{Context: retrieve.Sentinel}
	}

	chosen := r.selectCandidates(ctx, query, res.Candidates)
	return Selection{
		Context: buildContext(res.GraphInsight, chosen),
		Chosen:  chosen,
	}
}

func (r *Reranker) selectCandidates(ctx context.Context, query string, candidates []retrieve.Candidate) []retrieve.Candidate {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "User message:\n%s\n\nExcerpts:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&prompt, "[%d] %s: %s\n", i, c.Title, c.Content)
	}

	var sel indexSelection
	if err := r.llm.GenerateData(ctx, llm.Request{
		Model:  r.fastModel,
		System: rerankSystem,
		Prompt: prompt.String(),
	}, &sel); err != nil {
		r.logger.Warn("rerank call failed, keeping full candidate list", "error", err)
		return candidates
	}

	seen := make(map[int]bool, len(sel.Indices))
	chosen := make([]retrieve.Candidate, 0, maxSelected)
	for _, idx := range sel.Indices {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		chosen = append(chosen, candidates[idx])
		if len(chosen) == maxSelected {
			break
		}
	}

	if len(chosen) == 0 {
		r.logger.Warn("rerank returned no valid indices, keeping full candidate list",
			"indices", sel.Indices)
		return candidates
	}
	return chosen
}

func buildContext(insight string, chosen []retrieve.Candidate) string {
	blocks := make([]string, 0, len(chosen)+1)
	if insight != "" {
		blocks = append(blocks, insight)
	}
	for _, c := range chosen {
		blocks = append(blocks, c.Block)
	}
	return strings.Join(blocks, "\n\n")
}
