package llm

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// BatchConfig controls how large embedding requests are split.
type BatchConfig struct {
	MaxBatchSize      int // texts per provider call
	ConcurrentBatches int // sub-batches in flight at once
}

// DefaultBatchConfig returns the default batching policy.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:      50,
		ConcurrentBatches: 4,
	}
}

// BatchEmbedder splits oversized embedding requests into bounded sub-batches
// executed concurrently, preserving input order. Everything else delegates to
// the wrapped service. One sub-batch failure fails the whole call: a document
// with half its chunks embedded is worse than a failed document.
type BatchEmbedder struct {
	Service
	cfg    BatchConfig
	logger zerolog.Logger
}

// NewBatchEmbedder wraps svc with sub-batching.
func NewBatchEmbedder(svc Service, cfg BatchConfig, logger zerolog.Logger) *BatchEmbedder {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultBatchConfig().MaxBatchSize
	}
	if cfg.ConcurrentBatches <= 0 {
		cfg.ConcurrentBatches = DefaultBatchConfig().ConcurrentBatches
	}
	return &BatchEmbedder{Service: svc, cfg: cfg, logger: logger}
}

func (b *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.cfg.MaxBatchSize {
		return b.Service.EmbedBatch(ctx, texts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	sem := make(chan struct{}, b.cfg.ConcurrentBatches)

	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	for start := 0; start < len(texts); start += b.cfg.MaxBatchSize {
		end := start + b.cfg.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			vectors, err := b.Service.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			copy(out[start:end], vectors)
		}(start, end)
	}

	wg.Wait()
	if firstErr != nil {
		b.logger.Warn().
			Err(firstErr).
			Int("texts", len(texts)).
			Msg("Embedding batch failed")
		return nil, firstErr
	}
	return out, nil
}
