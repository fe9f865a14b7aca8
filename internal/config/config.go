// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.solace/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Models: provider-qualified model tiers used by the intent router
//   - Retrieval: vector-search thresholds and the generic-label boost list
//   - RouterCache: TTL cache for routing decisions
//   - RateLimit: per-user request limiting
//   - Storage: PostgreSQL connection (see storage.go)
//   - Tracing: OTLP trace export
//
// Security: sensitive values (passwords) are masked in MarshalJSON.
// Validation: fail-fast range checks in validation.go.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingModel indicates a required model tier is not configured.
	ErrMissingModel = errors.New("missing model")

	// ErrInvalidThreshold indicates a similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidCount indicates a retrieval result count is out of range.
	ErrInvalidCount = errors.New("invalid retrieval count")

	// ErrInvalidCache indicates the router cache configuration is invalid.
	ErrInvalidCache = errors.New("invalid router cache configuration")

	// ErrInvalidRateLimit indicates the rate limit configuration is invalid.
	ErrInvalidRateLimit = errors.New("invalid rate limit configuration")

	// ErrInvalidFallbackChain indicates a model fallback chain does not
	// terminate at the fast default model.
	ErrInvalidFallbackChain = errors.New("invalid fallback chain")

	// ErrInvalidPostgres indicates the PostgreSQL configuration is invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// ModelsConfig names the provider-qualified models the router selects
// between. TopTier and Fast are required; Creative and LongContext are
// optional specialist providers (empty = tier disabled, router falls
// through the decision table).
type ModelsConfig struct {
	TopTier     string `mapstructure:"top_tier" json:"top_tier"`
	Fast        string `mapstructure:"fast" json:"fast"`
	Creative    string `mapstructure:"creative" json:"creative"`
	LongContext string `mapstructure:"long_context" json:"long_context"`
	Embedder    string `mapstructure:"embedder" json:"embedder"`

	// Fallbacks maps a model to an ordered list of substitutes tried when
	// the primary is unavailable. Every chain must terminate at Fast.
	Fallbacks map[string][]string `mapstructure:"fallbacks" json:"fallbacks"`
}

// RetrievalConfig holds the hybrid retriever knobs.
type RetrievalConfig struct {
	ProfileThreshold float32 `mapstructure:"profile_threshold" json:"profile_threshold"`
	ProfileCount     int     `mapstructure:"profile_count" json:"profile_count"`
	GlobalThreshold  float32 `mapstructure:"global_threshold" json:"global_threshold"`
	GlobalCount      int     `mapstructure:"global_count" json:"global_count"`

	// GenericLabels lists source-title substrings that suppress the
	// high-relevance tag (catch-all content that should not outrank
	// specific lessons). Matched case-insensitively.
	GenericLabels []string `mapstructure:"generic_labels" json:"generic_labels"`
}

// RouterCacheConfig bounds the routing decision cache.
type RouterCacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
	Capacity int           `mapstructure:"capacity" json:"capacity"`
}

// RateLimitConfig bounds per-user request rates.
type RateLimitConfig struct {
	PerUserRPS float64 `mapstructure:"per_user_rps" json:"per_user_rps"`
	Burst      int     `mapstructure:"burst" json:"burst"`
}

// TracingConfig configures OTLP trace export to a local collector.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	LogJSON    bool   `mapstructure:"log_json" json:"log_json"`

	Models      ModelsConfig      `mapstructure:"models" json:"models"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" json:"retrieval"`
	RouterCache RouterCacheConfig `mapstructure:"router_cache" json:"router_cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" json:"rate_limit"`
	Tracing     TracingConfig     `mapstructure:"tracing" json:"tracing"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".solace")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching the
// filesystem or environment. Used by tests and as a wiring baseline.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: default config does not unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8480")
	v.SetDefault("log_json", false)

	// Model tiers (provider-qualified Genkit names)
	v.SetDefault("models.top_tier", "googleai/gemini-2.5-pro")
	v.SetDefault("models.fast", "googleai/gemini-2.5-flash")
	v.SetDefault("models.creative", "")
	v.SetDefault("models.long_context", "googleai/gemini-2.5-pro")
	v.SetDefault("models.embedder", "text-embedding-004")
	v.SetDefault("models.fallbacks", map[string][]string{
		"googleai/gemini-2.5-pro": {"googleai/gemini-2.5-flash"},
	})

	// Retrieval: tight threshold for personal knowledge, loose for shared.
	v.SetDefault("retrieval.profile_threshold", 0.35)
	v.SetDefault("retrieval.profile_count", 10)
	v.SetDefault("retrieval.global_threshold", 0.10)
	v.SetDefault("retrieval.global_count", 15)
	v.SetDefault("retrieval.generic_labels", []string{"general knowledge"})

	v.SetDefault("router_cache.ttl", time.Hour)
	v.SetDefault("router_cache.capacity", 1000)

	v.SetDefault("rate_limit.per_user_rps", 0.5)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "solace")
	v.SetDefault("tracing.environment", "dev")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "solace")
	v.SetDefault("postgres_password", "solace_dev_password")
	v.SetDefault("postgres_db_name", "solace")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment overrides explicitly.
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit provider plugins, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "SOLACE_ADDR")
	mustBind("log_json", "SOLACE_LOG_JSON")
	mustBind("models.top_tier", "SOLACE_MODEL_TOP_TIER")
	mustBind("models.fast", "SOLACE_MODEL_FAST")
	mustBind("models.creative", "SOLACE_MODEL_CREATIVE")
	mustBind("models.long_context", "SOLACE_MODEL_LONG_CONTEXT")
	mustBind("models.embedder", "SOLACE_EMBEDDER")
	mustBind("tracing.endpoint", "SOLACE_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 chars or less
// are fully masked; longer ones keep the first and last two characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
