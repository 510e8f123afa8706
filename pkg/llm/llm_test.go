package llm

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestFakeEmbedOverlapScoresAboveThreshold(t *testing.T) {
	f := NewFake(256)

	chunk := f.Embed("A relates to B. B relates to C.")
	query := f.Embed("A")
	unrelated := f.Embed("zebra quantum flux")

	assert.GreaterOrEqual(t, cosine(query, chunk), 0.3,
		"query sharing a token with the chunk must clear the relevance floor")
	assert.Less(t, cosine(unrelated, chunk), 0.3)
}

func TestFakeEmbedIsDeterministic(t *testing.T) {
	f := NewFake(128)
	assert.Equal(t, f.Embed("some document text"), f.Embed("some document text"))
}

func TestFakeEmbedBatchInjectsErrors(t *testing.T) {
	f := NewFake(32)
	f.EmbedErrFn = func(call int) error {
		if call == 0 {
			return memory.NewUnavailable(nil, "down")
		}
		return nil
	}

	_, err := f.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)

	vecs, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, f.EmbedCalls())
}

func TestBatchEmbedderPreservesOrder(t *testing.T) {
	f := NewFake(64)
	be := NewBatchEmbedder(f, BatchConfig{MaxBatchSize: 3, ConcurrentBatches: 2}, zerolog.Nop())

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("document number %d", i)
	}

	got, err := be.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, text := range texts {
		assert.Equal(t, f.Embed(text), got[i], "index %d", i)
	}
	assert.Equal(t, 4, f.EmbedCalls(), "10 texts at batch size 3 is 4 sub-batches")
}

func TestBatchEmbedderFailsWholeCall(t *testing.T) {
	f := NewFake(64)
	var calls int32
	f.EmbedErrFn = func(call int) error {
		if atomic.AddInt32(&calls, 1) == 2 {
			return memory.NewUnavailable(nil, "down")
		}
		return nil
	}
	be := NewBatchEmbedder(f, BatchConfig{MaxBatchSize: 2, ConcurrentBatches: 1}, zerolog.Nop())

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	_, err := be.EmbedBatch(context.Background(), texts)
	require.Error(t, err)
	assert.True(t, memory.IsUnavailable(err))
}

func TestBatchEmbedderSmallInputSingleCall(t *testing.T) {
	f := NewFake(64)
	be := NewBatchEmbedder(f, DefaultBatchConfig(), zerolog.Nop())

	_, err := be.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.EmbedCalls())
}

func TestFakeStreamDeliversTokensAndStopsOnCancel(t *testing.T) {
	f := NewFake(32)
	f.ChatFn = func(system, user string) (string, error) {
		return "alpha beta gamma", nil
	}

	tokens, err := f.StreamChatComplete(context.Background(), "", "analyze")
	require.NoError(t, err)

	var got string
	for tok := range tokens {
		require.NoError(t, tok.Err)
		got += tok.Text
	}
	assert.Equal(t, "alpha beta gamma ", got)

	ctx, cancel := context.WithCancel(context.Background())
	tokens, err = f.StreamChatComplete(ctx, "", "analyze")
	require.NoError(t, err)
	<-tokens
	cancel()
	for range tokens {
	}
}

func TestFakeSummarizeTruncates(t *testing.T) {
	f := NewFake(32)
	got, err := f.Summarize(context.Background(), "one two three four five", 3)
	require.NoError(t, err)
	assert.Equal(t, "one two three", got)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	require.Error(t, err)

	svc, err := New(Config{Provider: "openai", EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 1536, svc.Dimension())

	svc, err = New(Config{Provider: "anthropic", EmbeddingDimension: 768})
	require.NoError(t, err)
	assert.Equal(t, 768, svc.Dimension())

	_, err = svc.EmbedBatch(context.Background(), []string{"x"})
	assert.True(t, memory.IsValidation(err))
}
