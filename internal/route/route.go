// Package route classifies each turn's intent and picks the model that
// serves it, with a TTL cache over non-critical decisions.
package route

import (
	"context"
	"strings"

	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
)

// Intent labels the kind of response a message calls for.
type Intent string

const (
	IntentEmotionalCrisis  Intent = "emotional_crisis"
	IntentEmotionalSupport Intent = "emotional_support"
	IntentCreativeWriting  Intent = "creative_writing"
	IntentTechnicalComplex Intent = "technical_complex"
	IntentLongContext      Intent = "long_context"
	IntentGeneralChat      Intent = "general_chat"
)

// Classification is the router's read of one message. Complexity is
// 1-10; IsCritical forces top-tier routing regardless of everything
// else.
type Classification struct {
	Intent     Intent `json:"intent"`
	Complexity int    `json:"complexity"`
	IsCritical bool   `json:"is_critical"`
	Reasoning  string `json:"reasoning"`
}

// Decision is the routing outcome for one turn.
type Decision struct {
	Provider      string
	Model         string
	Intent        Intent
	Complexity    int
	Reasoning     string
	EstimatedCost float64
	IsCritical    bool
}

// UserContext carries per-turn signals that feed rule-based complexity.
type UserContext struct {
	// ConversationDepth is the number of prior turns in the session.
	ConversationDepth int
}

const classifySystem = `You route messages in a coaching conversation.
Classify the user's message:
- intent: one of emotional_crisis, emotional_support, creative_writing,
  technical_complex, long_context, general_chat
- complexity: 1 (trivial) to 10 (requires deep multi-step reasoning)
- is_critical: true only when the user may be in danger (self-harm,
  suicide, abuse) or the message is an acute emotional crisis
- reasoning: one short sentence`

// Router classifies and decides. Safe for concurrent use; the only
// mutable state is the decision cache.
type Router struct {
	llm    llm.Client
	models config.ModelsConfig
	cache  *Cache
	logger log.Logger
}

// New creates a Router with a decision cache sized per cfg.
func New(client llm.Client, models config.ModelsConfig, cacheCfg config.RouterCacheConfig, logger log.Logger) *Router {
	return &Router{
		llm:    client,
		models: models,
		cache:  NewCache(cacheCfg.TTL, cacheCfg.Capacity),
		logger: logger.With("component", "route"),
	}
}

// Classify combines LLM classification with rule-based complexity.
// emotional is the sense stage's sentiment word; a classification
// failure yields the safe default (general_chat, complexity 5, not
// critical), which is never cached.
func (r *Router) Classify(ctx context.Context, message, emotional string, userCtx UserContext) (Classification, bool) {
	var c Classification
	err := r.llm.GenerateData(ctx, llm.Request{
		Model:  r.models.Fast,
		System: classifySystem,
		Prompt: "Detected emotional state: " + emotional + "\n\nMessage:\n" + message,
	}, &c)
	if err != nil || !validIntent(c.Intent) {
		r.logger.Warn("classification failed, using safe default", "error", err)
		return Classification{
			Intent:     IntentGeneralChat,
			Complexity: 5,
			Reasoning:  "classification unavailable",
		}, false
	}

	// The LLM's complexity score is advisory only; blend it with the
	// rule-based estimate so a single bad classification cannot swing
	// routing on its own.
	rules := ruleComplexity(message, userCtx)
	c.Complexity = clampComplexity((clampComplexity(c.Complexity) + rules) / 2)
	return c, true
}

func validIntent(i Intent) bool {
	switch i {
	case IntentEmotionalCrisis, IntentEmotionalSupport, IntentCreativeWriting,
		IntentTechnicalComplex, IntentLongContext, IntentGeneralChat:
		return true
	}
	return false
}

// technicalVocab marks messages that lean technical regardless of what
// the classifier says.
var technicalVocab = []string{
	"algorithm", "architecture", "database", "compile", "deploy",
	"regression", "spreadsheet", "formula", "contract", "clause",
	"tax", "equity", "valuation", "api", "debug",
}

// ruleComplexity estimates complexity 1-10 from surface features.
func ruleComplexity(message string, userCtx UserContext) int {
	score := 1

	switch n := len(message); {
	case n > 2000:
		score += 4
	case n > 800:
		score += 3
	case n > 300:
		score += 2
	case n > 100:
		score++
	}

	lowered := strings.ToLower(message)
	for _, term := range technicalVocab {
		if strings.Contains(lowered, term) {
			score += 2
			break
		}
	}

	if q := strings.Count(message, "?"); q >= 3 {
		score += 2
	} else if q > 0 {
		score++
	}

	if userCtx.ConversationDepth > 10 {
		score++
	}

	return clampComplexity(score)
}

func clampComplexity(c int) int {
	if c < 1 {
		return 1
	}
	if c > 10 {
		return 10
	}
	return c
}
