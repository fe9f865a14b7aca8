// Package app assembles the application: database, model providers,
// pipeline stages, and the HTTP server.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/internal/server"
)

// App holds the assembled application and its cleanup hooks.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	LLM      llm.Client
	Pipeline *pipeline.Pipeline
	Server   *server.Server

	persister   *pipeline.Persister
	otelCleanup func()
	logger      log.Logger
}

// Close releases resources in reverse initialization order. The
// persister drains first so in-flight background writes land before
// the pool closes.
func (a *App) Close() error {
	if a.persister != nil {
		a.persister.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
