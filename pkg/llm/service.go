package llm

import (
	"context"
	"fmt"
)

// Token is one unit of a streamed chat completion. Err is set on the final
// token when the stream terminated abnormally; the channel is closed after.
type Token struct {
	Text string
	Err  error
}

// Service is the LLM surface the engine depends on: embeddings for the
// vector path, chat completion for relationship extraction and document
// summaries, and streaming chat for interactive analysis.
type Service interface {
	// IsHealthy verifies the provider is reachable with the configured
	// credentials.
	IsHealthy(ctx context.Context) error

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ChatComplete runs a single-turn completion and returns the full text.
	ChatComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// StreamChatComplete runs a single-turn completion and delivers tokens on
	// the returned channel. Cancelling ctx stops the stream; the channel is
	// always closed when the stream ends.
	StreamChatComplete(ctx context.Context, systemPrompt, userPrompt string) (<-chan Token, error)

	// Summarize produces a short summary of text, at most maxWords words.
	Summarize(ctx context.Context, text string, maxWords int) (string, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider           string // "openai" or "anthropic"
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
}

// New creates a provider-backed service based on config.
func New(cfg Config) (Service, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
