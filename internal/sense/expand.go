package sense

import (
	"context"

	"github.com/solace-labs/solace/internal/llm"
)

// Expansion carries the query rephrasings and the embedding chosen for
// retrieval.
type Expansion struct {
	Q1 string
	Q2 string

	// Vector is Q1's embedding when expansion succeeded, otherwise the
	// fallback passed to Expand.
	Vector []float32
}

type rephrasings struct {
	Q1 string `json:"q1"`
	Q2 string `json:"q2"`
}

const expandSystem = `Rewrite the user's message as up to two alternate
phrasings that would match relevant coaching material. q1 should be the
most literal restatement, q2 a broader thematic one. Keep each under 30
words and in the message's original language.`

// Expand produces alternate phrasings and a single batched embed call
// over {original, q1, q2}. The retrieval vector is q1's embedding on
// success; every failure silently keeps the fallback vector.
func (s *Stage) Expand(ctx context.Context, query string, fallback []float32) Expansion {
	exp := Expansion{Vector: fallback}

	var r rephrasings
	if err := s.llm.GenerateData(ctx, llm.Request{
		Model:  s.fastModel,
		System: expandSystem,
		Prompt: query,
	}, &r); err != nil || r.Q1 == "" {
		s.logger.Debug("query expansion skipped", "error", err)
		return exp
	}
	exp.Q1, exp.Q2 = r.Q1, r.Q2

	texts := []string{query, r.Q1}
	if r.Q2 != "" {
		texts = append(texts, r.Q2)
	}
	vecs, err := s.llm.Embed(ctx, texts...)
	if err != nil || len(vecs) < 2 || len(vecs[1]) == 0 {
		s.logger.Debug("expansion embedding failed, keeping original vector", "error", err)
		return exp
	}

	exp.Vector = vecs[1]
	return exp
}
