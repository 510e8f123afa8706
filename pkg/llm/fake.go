package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// Fake is a deterministic in-process Service for tests and embedded use.
// Embeddings are token-presence vectors: each distinct lowercased word in the
// text hashes to one dimension, so texts sharing words have cosine overlap
// and unrelated texts do not. Chat behavior is scripted via ChatFn.
type Fake struct {
	dim int

	mu         sync.Mutex
	embedCalls int
	chatCalls  int

	// ChatFn scripts chat completions. Nil means every prompt yields "".
	ChatFn func(systemPrompt, userPrompt string) (string, error)

	// EmbedErrFn injects an embedding failure per call index (0-based).
	// Nil result means the call succeeds.
	EmbedErrFn func(call int) error

	// HealthErr makes IsHealthy fail when set.
	HealthErr error
}

// NewFake creates a fake with the given embedding dimension.
func NewFake(dimension int) *Fake {
	if dimension <= 0 {
		dimension = 64
	}
	return &Fake{dim: dimension}
}

func (f *Fake) Dimension() int {
	return f.dim
}

func (f *Fake) IsHealthy(ctx context.Context) error {
	return f.HealthErr
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	call := f.embedCalls
	f.embedCalls++
	errFn := f.EmbedErrFn
	f.mu.Unlock()

	if errFn != nil {
		if err := errFn(call); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.Embed(text)
	}
	return out, nil
}

// Embed returns the normalized token-presence vector for one text.
func (f *Fake) Embed(text string) []float32 {
	vec := make([]float32, f.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%f.dim] = 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (f *Fake) ChatComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.chatCalls++
	fn := f.ChatFn
	f.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(systemPrompt, userPrompt)
}

func (f *Fake) StreamChatComplete(ctx context.Context, systemPrompt, userPrompt string) (<-chan Token, error) {
	content, err := f.ChatComplete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	out := make(chan Token)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(content) {
			select {
			case out <- Token{Text: word + " "}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *Fake) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " "), nil
}

// EmbedCalls returns how many EmbedBatch calls the fake has served.
func (f *Fake) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

// ChatCalls returns how many chat completions the fake has served.
func (f *Fake) ChatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
