// Package pipeline orchestrates one conversation turn end to end:
// sense, expand, retrieve, rerank, route, generate (streaming or
// ensemble), then background persistence.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/solace-labs/solace/internal/emotion"
	"github.com/solace-labs/solace/internal/ensemble"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/profile"
	"github.com/solace-labs/solace/internal/rerank"
	"github.com/solace-labs/solace/internal/retrieve"
	"github.com/solace-labs/solace/internal/route"
	"github.com/solace-labs/solace/internal/sense"
	"github.com/solace-labs/solace/internal/session"
)

// streamErrorNotice is appended in-band when generation dies mid-stream
// so the user never mistakes a truncated answer for a complete one.
const streamErrorNotice = "\n\n[The response was interrupted by a provider error. Please try again.]"

// historyLimit bounds how much conversation context feeds the prompt.
const historyLimit = 20

// emotionWindow is the recent-event window used for trend detection.
const emotionWindow = 10

// Turn is one inbound request to the pipeline.
type Turn struct {
	Query             string
	UserID            string
	SessionID         uuid.UUID
	ProfileID         *uuid.UUID
	DetectedLanguage  string
	DetectedSentiment string
}

// Outcome is the completed result of a turn.
type Outcome struct {
	Text      string
	Citations []rerank.Citation
	Decision  route.Decision
}

// DeltaFunc receives response deltas as they are generated.
type DeltaFunc func(delta string) error

// SessionStore is the conversation persistence the pipeline consumes.
type SessionStore interface {
	Ensure(ctx context.Context, sessionID uuid.UUID, userID string, profileID *uuid.UUID) error
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]session.Message, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string, citations []rerank.Citation) error
}

// FactStore is the durable-facts surface the pipeline consumes.
type FactStore interface {
	Facts(ctx context.Context, userID string, sessionID *uuid.UUID) (map[string]string, error)
	UpsertFact(ctx context.Context, userID string, sessionID *uuid.UUID, key, value string) error
}

// PsychStore merges long-term profile deltas.
type PsychStore interface {
	Merge(ctx context.Context, userID string, delta profile.Profile) error
}

// EmotionRecorder appends emotional events and reads back the recent
// window for trend detection.
type EmotionRecorder interface {
	Record(ctx context.Context, e emotion.Event) (emotion.Event, error)
	Recent(ctx context.Context, userID string, n int) ([]emotion.Event, error)
}

// Pipeline wires the stages together. Safe for concurrent use.
type Pipeline struct {
	sense     *sense.Stage
	retriever *retrieve.Retriever
	reranker  *rerank.Reranker
	router    *route.Router
	ensemble  *ensemble.Ensemble
	llm       llm.Client
	breaker   *CircuitBreaker
	persister *Persister

	sessions SessionStore
	facts    FactStore
	psych    PsychStore
	emotions EmotionRecorder

	fastModel string
	logger    log.Logger
}

// Config collects the pipeline's collaborators.
type Config struct {
	Sense     *sense.Stage
	Retriever *retrieve.Retriever
	Reranker  *rerank.Reranker
	Router    *route.Router
	Ensemble  *ensemble.Ensemble
	LLM       llm.Client
	Breaker   *CircuitBreaker
	Persister *Persister
	Sessions  SessionStore
	Facts     FactStore
	Psych     PsychStore
	Emotions  EmotionRecorder
	FastModel string
	Logger    log.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		sense:     cfg.Sense,
		retriever: cfg.Retriever,
		reranker:  cfg.Reranker,
		router:    cfg.Router,
		ensemble:  cfg.Ensemble,
		llm:       cfg.LLM,
		breaker:   cfg.Breaker,
		persister: cfg.Persister,
		sessions:  cfg.Sessions,
		facts:     cfg.Facts,
		psych:     cfg.Psych,
		emotions:  cfg.Emotions,
		fastModel: cfg.FastModel,
		logger:    cfg.Logger.With("component", "pipeline"),
	}
}

// Run executes one turn. Deltas stream through onDelta; the returned
// Outcome holds the full text and citations. A cancelled context stops
// the stream, discards the partial buffer, and skips persistence.
func (p *Pipeline) Run(ctx context.Context, turn Turn, onDelta DeltaFunc) (Outcome, error) {
	// SENSING
	reading := p.sense.Sense(ctx, turn.Query)
	if turn.DetectedSentiment != "" {
		reading.Sentiment = turn.DetectedSentiment
	}
	if turn.DetectedLanguage != "" {
		reading.Language = turn.DetectedLanguage
	}

	// EXPANDING
	expansion := p.sense.Expand(ctx, turn.Query, reading.Embedding)

	// RETRIEVING
	retrieved := p.retriever.Retrieve(ctx, expansion.Vector, turn.ProfileID, turn.Query)

	// RERANKING
	selection := p.reranker.Rerank(ctx, turn.Query, retrieved)

	// User context for routing and the prompt. Failures degrade to
	// empty context, never abort the turn.
	history, facts, trend := p.loadUserContext(ctx, turn)

	// ROUTING
	decision := p.router.Route(ctx, turn.UserID, turn.Query, reading.Sentiment,
		route.UserContext{ConversationDepth: len(history)})

	system := p.buildSystemPrompt(reading, selection.Context, facts, trend)
	prompt := buildUserPrompt(history, turn.Query)

	// STREAMING | ENSEMBLE
	var (
		text string
		err  error
	)
	if decision.IsCritical && decision.Intent == route.IntentEmotionalCrisis {
		text, err = p.runEnsemble(ctx, system, prompt, onDelta)
	} else {
		text, err = p.runStreaming(ctx, decision, system, prompt, onDelta)
	}
	if err != nil {
		return Outcome{}, err
	}

	if ctx.Err() != nil || text == "" {
		// Cancelled or empty turns never persist.
		return Outcome{}, ctx.Err()
	}

	outcome := Outcome{Text: text, Citations: selection.Citations(), Decision: decision}

	// PERSISTING happens after the response is fully delivered.
	p.enqueuePersistence(turn, reading, outcome)
	return outcome, nil
}

func (p *Pipeline) loadUserContext(ctx context.Context, turn Turn) ([]session.Message, map[string]string, string) {
	type historyResult struct {
		msgs []session.Message
		err  error
	}
	type factsResult struct {
		facts map[string]string
		err   error
	}
	type trendResult struct {
		trend string
		err   error
	}
	historyCh := make(chan historyResult, 1)
	factsCh := make(chan factsResult, 1)
	trendCh := make(chan trendResult, 1)

	go func() {
		if err := p.sessions.Ensure(ctx, turn.SessionID, turn.UserID, turn.ProfileID); err != nil {
			historyCh <- historyResult{nil, err}
			return
		}
		msgs, err := p.sessions.History(ctx, turn.SessionID, historyLimit)
		historyCh <- historyResult{msgs, err}
	}()
	go func() {
		f, err := p.facts.Facts(ctx, turn.UserID, &turn.SessionID)
		factsCh <- factsResult{f, err}
	}()
	go func() {
		events, err := p.emotions.Recent(ctx, turn.UserID, emotionWindow)
		trendCh <- trendResult{emotion.Trend(events), err}
	}()

	hr := <-historyCh
	if hr.err != nil {
		p.logger.Warn("loading session history failed", "error", hr.err)
	}
	fr := <-factsCh
	if fr.err != nil {
		p.logger.Warn("loading user facts failed", "error", fr.err)
	}
	tr := <-trendCh
	if tr.err != nil {
		p.logger.Warn("loading emotional events failed", "error", tr.err)
		tr.trend = emotion.TrendStable
	}
	return hr.msgs, fr.facts, tr.trend
}

// runEnsemble delivers the crisis response as a single delta.
func (p *Pipeline) runEnsemble(ctx context.Context, system, prompt string, onDelta DeltaFunc) (string, error) {
	text, err := p.ensemble.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("crisis generation: %w", err)
	}
	if onDelta != nil {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// runStreaming streams from the routed model, walking the fallback
// chain on pre-stream failures. Once any delta has been delivered a
// failure is surfaced in-band instead of retried.
func (p *Pipeline) runStreaming(ctx context.Context, decision route.Decision, system, prompt string, onDelta DeltaFunc) (string, error) {
	models := append([]string{decision.Model}, p.router.Fallback(decision.Model)...)

	var acc strings.Builder
	var lastErr error

	for _, model := range models {
		if err := p.breaker.Allow(); err != nil {
			return "", fmt.Errorf("generation rejected: %w", err)
		}

		emitted := false
		full, err := p.llm.GenerateStream(ctx, llm.Request{
			Model:  model,
			System: system,
			Prompt: prompt,
		}, func(cbCtx context.Context, delta string) error {
			if delta == "" {
				return nil
			}
			emitted = true
			acc.WriteString(delta)
			if onDelta != nil {
				return onDelta(delta)
			}
			return nil
		})

		if err == nil {
			p.breaker.Success()
			// Prefer the provider's final text; fall back to the
			// accumulator if the response came back empty.
			if full != "" {
				return full, nil
			}
			return acc.String(), nil
		}

		p.breaker.Failure()
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if emitted {
			// Mid-stream failure: append a visible notice to the
			// partial text, never retry.
			p.logger.Error("generation failed mid-stream", "model", model, "error", err)
			notice := streamErrorNotice
			acc.WriteString(notice)
			if onDelta != nil {
				if dErr := onDelta(notice); dErr != nil {
					return "", dErr
				}
			}
			return acc.String(), nil
		}

		p.logger.Warn("generation failed before streaming, trying fallback",
			"model", model, "error", err)
	}

	return "", fmt.Errorf("all models in fallback chain failed: %w", lastErr)
}
