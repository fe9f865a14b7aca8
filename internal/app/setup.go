package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solace-labs/solace/db"
	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/emotion"
	"github.com/solace-labs/solace/internal/ensemble"
	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/observability"
	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/internal/profile"
	"github.com/solace-labs/solace/internal/rerank"
	"github.com/solace-labs/solace/internal/retrieve"
	"github.com/solace-labs/solace/internal/route"
	"github.com/solace-labs/solace/internal/sense"
	"github.com/solace-labs/solace/internal/server"
	"github.com/solace-labs/solace/internal/session"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must precede genkit.Init so the TracerProvider is ready.
	a.otelCleanup = observability.Setup(ctx, cfg.Tracing, logger)

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.Models.Embedder)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.Models.Embedder)
	}
	a.LLM = llm.NewGenkitClient(g, embedder, llm.DefaultRetryConfig(), logger)

	// Stores
	knowledgeStore := knowledge.NewStore(pool, logger)
	sessionStore := session.NewStore(pool, logger)
	profileStore := profile.NewStore(pool, logger)
	emotionStore := emotion.NewStore(pool, logger)

	// Pipeline stages
	fast := cfg.Models.Fast
	senseStage := sense.New(a.LLM, fast, logger)
	retriever := retrieve.New(knowledgeStore, knowledgeStore, a.LLM, fast, cfg.Retrieval, logger)
	reranker := rerank.New(a.LLM, fast, logger)
	router := route.New(a.LLM, cfg.Models, cfg.RouterCache, logger)
	ens := ensemble.New(a.LLM, cfg.Models.TopTier, fast, logger)

	a.persister = pipeline.NewPersister(context.WithoutCancel(ctx), logger)

	a.Pipeline = pipeline.New(pipeline.Config{
		Sense:     senseStage,
		Retriever: retriever,
		Reranker:  reranker,
		Router:    router,
		Ensemble:  ens,
		LLM:       a.LLM,
		Breaker:   pipeline.NewCircuitBreaker(pipeline.CircuitBreakerConfig{}),
		Persister: a.persister,
		Sessions:  sessionStore,
		Facts:     profileStore,
		Psych:     profileStore,
		Emotions:  emotionStore,
		FastModel: fast,
		Logger:    logger,
	})

	// Bearer credentials are resolved by the auth gateway in front of
	// this service; requests arriving here carry a trusted userId or
	// run anonymously.
	chat := server.NewChatHandler(a.Pipeline, nil, knowledgeStore,
		cfg.RateLimit.PerUserRPS, cfg.RateLimit.Burst, logger)
	health := server.NewHealthHandler(pool.Ping)
	a.Server = server.New(chat, health, logger)

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI and OpenAI
// provider plugins; the router addresses models by provider-qualified
// name across both.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}, &openai.OpenAI{}),
	)
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideDBPool runs migrations and opens a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// Compile-time checks that the concrete stores satisfy the
// consumer-side contracts they are wired into.
var (
	_ server.TurnRunner        = (*pipeline.Pipeline)(nil)
	_ server.ProfileGuard      = (*knowledge.Store)(nil)
	_ pipeline.SessionStore    = (*session.Store)(nil)
	_ pipeline.FactStore       = (*profile.Store)(nil)
	_ pipeline.PsychStore      = (*profile.Store)(nil)
	_ pipeline.EmotionRecorder = (*emotion.Store)(nil)
	_ retrieve.Searcher        = (*knowledge.Store)(nil)
	_ retrieve.GraphReader     = (*knowledge.Store)(nil)
)
