package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid values. Called by Load
// immediately after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validateCacheAndLimits(); err != nil {
		return err
	}
	return c.validatePostgres()
}

func (c *Config) validateModels() error {
	m := c.Models
	if m.TopTier == "" {
		return fmt.Errorf("%w: models.top_tier is required", ErrMissingModel)
	}
	if m.Fast == "" {
		return fmt.Errorf("%w: models.fast is required", ErrMissingModel)
	}
	if m.Embedder == "" {
		return fmt.Errorf("%w: models.embedder is required", ErrMissingModel)
	}

	// Required tiers must be provider-qualified for Genkit model lookup.
	for name, val := range map[string]string{
		"models.top_tier":     m.TopTier,
		"models.fast":         m.Fast,
		"models.creative":     m.Creative,
		"models.long_context": m.LongContext,
	} {
		if val != "" && !strings.Contains(val, "/") {
			return fmt.Errorf("%w: %s must be provider-qualified (e.g. googleai/gemini-2.5-flash), got %q",
				ErrMissingModel, name, val)
		}
	}

	// Every fallback chain terminates at the fast default, so routing can
	// never dead-end at "no model".
	for primary, chain := range m.Fallbacks {
		if len(chain) == 0 {
			return fmt.Errorf("%w: chain for %q is empty", ErrInvalidFallbackChain, primary)
		}
		if chain[len(chain)-1] != m.Fast {
			return fmt.Errorf("%w: chain for %q must terminate at %q, ends at %q",
				ErrInvalidFallbackChain, primary, m.Fast, chain[len(chain)-1])
		}
	}

	return nil
}

func (c *Config) validateRetrieval() error {
	r := c.Retrieval
	for name, v := range map[string]float32{
		"retrieval.profile_threshold": r.ProfileThreshold,
		"retrieval.global_threshold":  r.GlobalThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %.2f", ErrInvalidThreshold, name, v)
		}
	}
	for name, v := range map[string]int{
		"retrieval.profile_count": r.ProfileCount,
		"retrieval.global_count":  r.GlobalCount,
	} {
		if v < 1 || v > 100 {
			return fmt.Errorf("%w: %s must be in [1,100], got %d", ErrInvalidCount, name, v)
		}
	}
	return nil
}

func (c *Config) validateCacheAndLimits() error {
	if c.RouterCache.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %v", ErrInvalidCache, c.RouterCache.TTL)
	}
	if c.RouterCache.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidCache, c.RouterCache.Capacity)
	}
	if c.RateLimit.PerUserRPS <= 0 {
		return fmt.Errorf("%w: per_user_rps must be positive, got %v", ErrInvalidRateLimit, c.RateLimit.PerUserRPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimit.Burst)
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host is required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: postgres_port must be in [1,65535], got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name is required", ErrInvalidPostgres)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: unknown sslmode %q", ErrInvalidPostgres, c.PostgresSSLMode)
	}
	return nil
}
