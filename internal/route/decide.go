package route

import (
	"context"
	"strings"
)

// Rough relative cost per tier, used for logging and budget dashboards
// only; routing never reads it back.
const (
	costTopTier  = 1.0
	costSpecial  = 0.6
	costFast     = 0.1
	costPerPoint = 0.05 // complexity surcharge
)

// Decide applies the priority decision table. First match wins;
// critical turns can never land on the fast model.
func (r *Router) Decide(c Classification, userCtx UserContext) Decision {
	d := Decision{
		Intent:     c.Intent,
		Complexity: c.Complexity,
		Reasoning:  c.Reasoning,
		IsCritical: c.IsCritical,
	}

	switch {
	case c.IsCritical || c.Intent == IntentEmotionalCrisis:
		d.Model = r.models.TopTier
		d.EstimatedCost = costTopTier

	case c.Intent == IntentEmotionalSupport && c.Complexity > 6:
		d.Model = r.models.TopTier
		d.EstimatedCost = costTopTier

	case c.Intent == IntentCreativeWriting && r.models.Creative != "":
		d.Model = r.models.Creative
		d.EstimatedCost = costSpecial

	case c.Intent == IntentLongContext && r.models.LongContext != "":
		d.Model = r.models.LongContext
		d.EstimatedCost = costSpecial

	case c.Intent == IntentTechnicalComplex && c.Complexity > 7:
		d.Model = r.models.TopTier
		d.EstimatedCost = costTopTier

	default:
		d.Model = r.models.Fast
		d.EstimatedCost = costFast
	}

	d.Provider = providerOf(d.Model)
	d.EstimatedCost += float64(c.Complexity) * costPerPoint
	return d
}

// Route resolves a decision for the message, consulting the cache
// first. Only successful, non-critical classifications are cached.
func (r *Router) Route(ctx context.Context, userID, message, emotional string, userCtx UserContext) Decision {
	if d, ok := r.cache.Get(userID, message); ok {
		return d
	}

	c, classified := r.Classify(ctx, message, emotional, userCtx)
	d := r.Decide(c, userCtx)

	if classified && !d.IsCritical {
		r.cache.Set(userID, message, d)
	}

	r.logger.Debug("routing decision",
		"intent", d.Intent,
		"model", d.Model,
		"complexity", d.Complexity,
		"critical", d.IsCritical,
		"cached", false)
	return d
}

// Fallback returns the static ordered substitute chain for model, or
// a single-element chain holding the fast default when none is
// configured. Chains always terminate at the fast model (validated at
// config load).
func (r *Router) Fallback(model string) []string {
	if chain, ok := r.models.Fallbacks[model]; ok {
		return chain
	}
	if model == r.models.Fast {
		return nil
	}
	return []string{r.models.Fast}
}

func providerOf(model string) string {
	if i := strings.IndexByte(model, '/'); i > 0 {
		return model[:i]
	}
	return ""
}
