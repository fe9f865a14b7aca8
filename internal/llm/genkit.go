package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/solace-labs/solace/internal/log"
)

// GenkitClient implements Client on a Genkit instance. Model names pass
// through to Genkit's provider-qualified lookup; embeddings go through
// the single configured embedder.
type GenkitClient struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	retry    RetryConfig
	logger   log.Logger
}

// NewGenkitClient builds a client over an initialized Genkit instance.
func NewGenkitClient(g *genkit.Genkit, embedder ai.Embedder, retry RetryConfig, logger log.Logger) *GenkitClient {
	return &GenkitClient{
		g:        g,
		embedder: embedder,
		retry:    retry,
		logger:   logger.With("component", "llm"),
	}
}

func buildOptions(req Request) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithModelName(req.Model)}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Messages) > 0 {
		opts = append(opts, ai.WithMessages(req.Messages...))
	} else {
		opts = append(opts, ai.WithPrompt(req.Prompt))
	}
	if req.Temperature > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(req.Temperature),
		}))
	}
	return opts
}

// GenerateText returns the complete text of a single generation,
// retrying transient failures.
func (c *GenkitClient) GenerateText(ctx context.Context, req Request) (string, error) {
	text, err := withRetry(ctx, c.retry, func() (string, error) {
		resp, err := genkit.Generate(ctx, c.g, buildOptions(req)...)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateData generates structured output into out, retrying transient
// failures. out's type drives the JSON schema sent to the model.
func (c *GenkitClient) GenerateData(ctx context.Context, req Request, out any) error {
	_, err := withRetry(ctx, c.retry, func() (struct{}, error) {
		opts := append(buildOptions(req), ai.WithOutputType(out))
		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err != nil {
			return struct{}{}, fmt.Errorf("generate structured: %w", err)
		}
		if err := resp.Output(out); err != nil {
			return struct{}{}, fmt.Errorf("decoding structured output: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// GenerateStream streams text deltas through cb and returns the full
// text. Never retried: once a delta reached the caller the call is no
// longer idempotent.
func (c *GenkitClient) GenerateStream(ctx context.Context, req Request, cb StreamFunc) (string, error) {
	opts := append(buildOptions(req),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if cb == nil {
				return nil
			}
			return cb(ctx, chunk.Text())
		}),
	)

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate stream: %w", err)
	}
	return resp.Text(), nil
}

// Embed returns one vector per input text, in input order.
func (c *GenkitClient) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	return withRetry(ctx, c.retry, func() ([][]float32, error) {
		resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				ErrEmptyResponse, len(resp.Embeddings), len(texts))
		}
		vectors := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			vectors[i] = e.Embedding
		}
		return vectors, nil
	})
}
