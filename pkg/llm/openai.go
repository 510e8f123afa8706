package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// OpenAI implements Service against the OpenAI API: embeddings for the
// vector path plus chat completion and streaming.
type OpenAI struct {
	client     openai.Client
	chatModel  string
	embedModel string
	dimension  int
}

// NewOpenAI creates an OpenAI-backed service.
func NewOpenAI(cfg Config) *OpenAI {
	dimension := cfg.EmbeddingDimension
	if dimension <= 0 {
		switch cfg.EmbeddingModel {
		case "text-embedding-3-large":
			dimension = 3072
		default:
			dimension = 1536
		}
	}
	return &OpenAI{
		client:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		dimension:  dimension,
	}
}

// Dimension returns the embedding vector dimension.
func (s *OpenAI) Dimension() int {
	return s.dimension
}

// IsHealthy checks reachability and credentials with a model lookup.
func (s *OpenAI) IsHealthy(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.chatModel); err != nil {
		return s.classify(err)
	}
	return nil
}

// EmbedBatch embeds all texts in one API call, preserving input order.
func (s *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, s.classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, memory.NewUnavailable(nil, "openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		embeddings[d.Index] = vec
	}
	return embeddings, nil
}

// ChatComplete runs a single-turn completion.
func (s *OpenAI) ChatComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, s.chatParams(systemPrompt, userPrompt))
	if err != nil {
		return "", s.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", memory.NewUnavailable(nil, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChatComplete streams a single-turn completion token by token.
func (s *OpenAI) StreamChatComplete(ctx context.Context, systemPrompt, userPrompt string) (<-chan Token, error) {
	stream := s.client.Chat.Completions.NewStreaming(ctx, s.chatParams(systemPrompt, userPrompt))

	out := make(chan Token)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Token{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- Token{Err: s.classify(err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Summarize produces a summary of at most maxWords words.
func (s *OpenAI) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	return s.ChatComplete(ctx,
		fmt.Sprintf("Summarize the following document in at most %d words. Reply with the summary only.", maxWords),
		text)
}

func (s *OpenAI) chatParams(systemPrompt, userPrompt string) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.chatModel),
		Messages: messages,
	}
}

func (s *OpenAI) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classify("openai", apierr.StatusCode, err)
	}
	return classify("openai", 0, err)
}
