// Package sense runs the pre-retrieval analysis of an incoming message:
// emotional classification and query embedding, concurrently, plus
// query expansion. Every failure degrades to a neutral reading so the
// turn can always continue.
package sense

import (
	"context"

	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

// DefaultLanguage is assumed when classification fails or the model
// does not return a language tag.
const DefaultLanguage = "en"

// Reading is the combined result of classification and embedding.
// An empty Embedding means retrieval should be skipped.
type Reading struct {
	Embedding    []float32
	Sentiment    string
	Language     string
	Intensity    float64
	UrgencyLevel int
	CrisisFlag   bool
}

// Classification is the structured output requested from the model.
type Classification struct {
	Sentiment    string  `json:"sentiment"`
	Language     string  `json:"language"`
	Intensity    float64 `json:"intensity"`
	UrgencyLevel int     `json:"urgency_level"`
	CrisisFlag   bool    `json:"crisis_flag"`
}

const classifySystem = `You analyze one user message from a coaching conversation.
Return sentiment (one word, e.g. anxious, hopeful, neutral), the BCP-47
language tag of the message, emotional intensity from 0.0 to 1.0, an
urgency level from 0 (none) to 10 (immediate danger), and crisis_flag
true only for self-harm, suicide, or acute safety risk.`

// Stage performs sensing and expansion. Safe for concurrent use.
type Stage struct {
	llm       llm.Client
	fastModel string
	logger    log.Logger
}

// New creates a Stage using fastModel for classification and expansion.
func New(client llm.Client, fastModel string, logger log.Logger) *Stage {
	return &Stage{
		llm:       client,
		fastModel: fastModel,
		logger:    logger.With("component", "sense"),
	}
}

// Sense classifies and embeds query concurrently. It never returns an
// error for model failures: classification falls back to a neutral
// reading and embedding falls back to empty, which downstream treats
// as "skip retrieval".
func (s *Stage) Sense(ctx context.Context, query string) Reading {
	type classifyResult struct {
		c   Classification
		err error
	}
	type embedResult struct {
		vec []float32
		err error
	}

	// Buffered (cap 1) so goroutines exit even if the caller bails out
	// on context cancellation.
	classifyCh := make(chan classifyResult, 1)
	embedCh := make(chan embedResult, 1)

	go func() {
		var c Classification
		err := s.llm.GenerateData(ctx, llm.Request{
			Model:  s.fastModel,
			System: classifySystem,
			Prompt: query,
		}, &c)
		classifyCh <- classifyResult{c, err}
	}()

	go func() {
		vecs, err := s.llm.Embed(ctx, query)
		if err != nil || len(vecs) == 0 {
			embedCh <- embedResult{nil, err}
			return
		}
		embedCh <- embedResult{vecs[0], nil}
	}()

	reading := Reading{Sentiment: "neutral", Language: DefaultLanguage}

	cr := <-classifyCh
	if cr.err != nil {
		s.logger.Warn("classification failed, using neutral reading", "error", cr.err)
	} else {
		reading.Sentiment = cr.c.Sentiment
		reading.Intensity = cr.c.Intensity
		reading.UrgencyLevel = cr.c.UrgencyLevel
		reading.CrisisFlag = cr.c.CrisisFlag
		if cr.c.Language != "" {
			reading.Language = cr.c.Language
		}
		if reading.Sentiment == "" {
			reading.Sentiment = "neutral"
		}
	}

	er := <-embedCh
	if er.err != nil {
		s.logger.Warn("query embedding failed, retrieval will be skipped", "error", er.err)
	} else {
		reading.Embedding = er.vec
	}

	return reading
}
