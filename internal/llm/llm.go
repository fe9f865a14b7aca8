// Package llm defines the model-call surface used by every pipeline
// stage. Stages depend on the Client interface, not on Genkit, so they
// can be unit tested with plain mocks; genkit.go provides the real
// implementation.
package llm

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
)

var (
	// ErrEmptyResponse indicates the model returned no usable content.
	ErrEmptyResponse = errors.New("model returned empty response")

	// ErrModelUnavailable indicates the model could not be reached after
	// retries. Callers holding a fallback chain should try the next model.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Request describes a single generation call.
type Request struct {
	// Model is the provider-qualified model name, e.g.
	// "googleai/gemini-2.5-flash".
	Model string

	// System is the system prompt. Optional.
	System string

	// Prompt is a single-shot user prompt. Ignored when Messages is set.
	Prompt string

	// Messages is the full conversation when multi-turn context matters.
	Messages []*ai.Message

	// Temperature overrides the provider default when > 0.
	Temperature float32
}

// StreamFunc receives each text delta as the model produces it.
// Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, delta string) error

// Client is the model-call interface consumed by the pipeline stages.
type Client interface {
	// GenerateText returns the complete text of a single generation.
	GenerateText(ctx context.Context, req Request) (string, error)

	// GenerateData generates structured output unmarshalled into out,
	// which must be a pointer to a struct with JSON tags.
	GenerateData(ctx context.Context, req Request, out any) error

	// GenerateStream streams text deltas through cb and returns the full
	// accumulated text. Not retried: deltas may already have reached the
	// caller when a failure occurs.
	GenerateStream(ctx context.Context, req Request, cb StreamFunc) (string, error)

	// Embed returns one embedding vector per input text, in order.
	Embed(ctx context.Context, texts ...string) ([][]float32, error)
}
