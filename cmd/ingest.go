package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/solace-labs/solace/internal/app"
	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/ingest"
	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/log"
)

var (
	ingestProfileID string
	ingestSourceURL string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Load documents into the knowledge base",
	Long: `Ingest splits each file into chunks, embeds them, and stores them in
the knowledge base. Without --profile the chunks are globally visible;
with --profile they are private to that coaching profile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProfileID, "profile", "", "coaching profile UUID (empty = global)")
	ingestCmd.Flags().StringVar(&ingestSourceURL, "url", "", "source URL recorded on every chunk")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: cfg.LogJSON})

	var profileID *uuid.UUID
	if ingestProfileID != "" {
		pid, err := uuid.Parse(ingestProfileID)
		if err != nil {
			return fmt.Errorf("invalid --profile: %w", err)
		}
		profileID = &pid
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	ing := ingest.New(knowledge.NewStore(a.Pool, logger), a.LLM, logger)

	total := 0
	for _, path := range paths {
		n, err := ing.IngestFile(ctx, path, profileID, ingestSourceURL)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		total += n
	}

	logger.Info("ingestion complete", "files", len(paths), "chunks", total)
	return nil
}
