package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

const anthropicMaxTokens = 4096

// Anthropic implements the chat side of Service against the Anthropic API.
// Anthropic has no embeddings endpoint, so EmbedBatch always fails; deploy it
// for extraction, summaries and analysis alongside an embedding-capable
// provider.
type Anthropic struct {
	client    anthropic.Client
	chatModel string
	dimension int
}

// NewAnthropic creates an Anthropic-backed service.
func NewAnthropic(cfg Config) *Anthropic {
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		chatModel: cfg.ChatModel,
		dimension: cfg.EmbeddingDimension,
	}
}

// Dimension returns the configured embedding dimension. Anthropic never
// produces embeddings itself; the value exists so a mixed deployment can
// still size its vector collection from one config section.
func (s *Anthropic) Dimension() int {
	return s.dimension
}

// IsHealthy checks reachability and credentials with a minimal completion.
func (s *Anthropic) IsHealthy(ctx context.Context) error {
	_, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.chatModel),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

// EmbedBatch is unsupported: Anthropic does not offer an embeddings API.
func (s *Anthropic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, memory.NewValidation("anthropic provider has no embeddings endpoint; configure an embedding-capable provider")
}

// ChatComplete runs a single-turn completion.
func (s *Anthropic) ChatComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := s.client.Messages.New(ctx, s.chatParams(systemPrompt, userPrompt))
	if err != nil {
		return "", s.classify(err)
	}

	content := ""
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}
	return content, nil
}

// StreamChatComplete streams a single-turn completion token by token.
func (s *Anthropic) StreamChatComplete(ctx context.Context, systemPrompt, userPrompt string) (<-chan Token, error) {
	stream := s.client.Messages.NewStreaming(ctx, s.chatParams(systemPrompt, userPrompt))

	out := make(chan Token)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			select {
			case out <- Token{Text: text.Text}:
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
func (s *Anthropic) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	return s.ChatComplete(ctx,
		fmt.Sprintf("Summarize the following document in at most %d words. Reply with the summary only.", maxWords),
		text)
}

func (s *Anthropic) chatParams(systemPrompt, userPrompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.chatModel),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params
}

func (s *Anthropic) classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return classify("anthropic", apierr.StatusCode, err)
	}
	return classify("anthropic", 0, err)
}
