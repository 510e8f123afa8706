package llm

import (
	"context"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/resilience"
)

// Resilient wraps a Service with the shared LLM executor so every provider
// call gets retry, per-attempt timeout and circuit breaking. Streaming only
// guards stream setup; tokens already in flight are not retried.
type Resilient struct {
	svc  Service
	exec *resilience.Executor
}

// NewResilient wraps svc with exec.
func NewResilient(svc Service, exec *resilience.Executor) *Resilient {
	return &Resilient{svc: svc, exec: exec}
}

func (r *Resilient) Dimension() int {
	return r.svc.Dimension()
}

func (r *Resilient) IsHealthy(ctx context.Context) error {
	return r.svc.IsHealthy(ctx)
}

func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.exec.Do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = r.svc.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) ChatComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out string
	err := r.exec.Do(ctx, "chat", func(ctx context.Context) error {
		var err error
		out, err = r.svc.ChatComplete(ctx, systemPrompt, userPrompt)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (r *Resilient) StreamChatComplete(ctx context.Context, systemPrompt, userPrompt string) (<-chan Token, error) {
	if err := r.exec.Breaker().Allow(); err != nil {
		return nil, err
	}
	out, err := r.svc.StreamChatComplete(ctx, systemPrompt, userPrompt)
	r.exec.Breaker().Record(err)
	return out, err
}

func (r *Resilient) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	var out string
	err := r.exec.Do(ctx, "summarize", func(ctx context.Context) error {
		var err error
		out, err = r.svc.Summarize(ctx, text, maxWords)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
