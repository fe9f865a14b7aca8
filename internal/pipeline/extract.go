package pipeline

import (
	"context"

	"github.com/solace-labs/solace/internal/emotion"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/profile"
	"github.com/solace-labs/solace/internal/sense"
)

// extraction is the structured output of the post-turn analysis call.
type extraction struct {
	Facts           map[string]string `json:"facts"`
	CoreDesire      string            `json:"core_desire"`
	LimitingBeliefs []string          `json:"limiting_beliefs"`
	Goals           map[string]string `json:"goals"`
}

const extractSystem = `You analyze one completed coaching exchange.
Extract only what the USER stated about themselves:
- facts: stable personal facts as short key/value pairs
  (e.g. "workplace": "hospital"), empty if none
- core_desire: the user's deepest stated motivation, or empty
- limiting_beliefs: self-limiting statements, verbatim-ish, or empty
- goals: named goals as key/value pairs, or empty
Never invent. Prefer empty over speculation.`

// enqueuePersistence schedules the post-turn writes: session turn,
// fact extraction, psych merge, emotional event. All failures are
// logged and dropped; the response is already delivered.
func (p *Pipeline) enqueuePersistence(turn Turn, reading sense.Reading, outcome Outcome) {
	p.persister.Enqueue(func(ctx context.Context) {
		if err := p.sessions.AppendTurn(ctx, turn.SessionID, turn.Query, outcome.Text, outcome.Citations); err != nil {
			p.logger.Error("persisting session turn failed", "error", err)
		}

		if _, err := p.emotions.Record(ctx, emotion.Event{
			UserID:       turn.UserID,
			SessionID:    &turn.SessionID,
			Category:     reading.Sentiment,
			Intensity:    reading.Intensity,
			UrgencyLevel: reading.UrgencyLevel,
			CrisisFlag:   reading.CrisisFlag,
		}); err != nil {
			p.logger.Error("recording emotional event failed", "error", err)
		}

		// Anonymous users never get durable fact or profile writes.
		if profile.IsAnonymous(turn.UserID) {
			return
		}
		p.extractAndStore(ctx, turn, outcome)
	})
}

func (p *Pipeline) extractAndStore(ctx context.Context, turn Turn, outcome Outcome) {
	var ex extraction
	err := p.llm.GenerateData(ctx, llm.Request{
		Model:  p.fastModel,
		System: extractSystem,
		Prompt: "User:\n" + turn.Query + "\n\nCoach:\n" + outcome.Text,
	}, &ex)
	if err != nil {
		p.logger.Warn("post-turn extraction failed", "error", err)
		return
	}

	for key, value := range ex.Facts {
		if key == "" || value == "" {
			continue
		}
		if err := p.facts.UpsertFact(ctx, turn.UserID, &turn.SessionID, key, value); err != nil {
			p.logger.Error("storing extracted fact failed", "key", key, "error", err)
		}
	}

	if ex.CoreDesire != "" || len(ex.LimitingBeliefs) > 0 || len(ex.Goals) > 0 {
		delta := profile.Profile{
			CoreDesire:      ex.CoreDesire,
			LimitingBeliefs: ex.LimitingBeliefs,
			Goals:           ex.Goals,
		}
		if err := p.psych.Merge(ctx, turn.UserID, delta); err != nil {
			p.logger.Error("merging psych profile failed", "error", err)
		}
	}
}
