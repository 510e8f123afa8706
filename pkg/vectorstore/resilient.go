package vectorstore

import (
	"context"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/resilience"
)

// Resilient wraps a Store with the shared vector-backend executor: retry,
// per-attempt timeout and one circuit breaker for the whole endpoint.
type Resilient struct {
	store Store
	exec  *resilience.Executor
}

// NewResilient wraps store with exec.
func NewResilient(store Store, exec *resilience.Executor) *Resilient {
	return &Resilient{store: store, exec: exec}
}

func (r *Resilient) IsHealthy(ctx context.Context) error {
	return r.store.IsHealthy(ctx)
}

func (r *Resilient) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	return r.exec.Do(ctx, "ensure_collection", func(ctx context.Context) error {
		return r.store.EnsureCollection(ctx, collection, dimension)
	})
}

func (r *Resilient) Upsert(ctx context.Context, collection string, points []Point) error {
	return r.exec.Do(ctx, "upsert", func(ctx context.Context) error {
		return r.store.Upsert(ctx, collection, points)
	})
}

func (r *Resilient) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter, minScore float64) ([]ScoredPoint, error) {
	var out []ScoredPoint
	err := r.exec.Do(ctx, "search", func(ctx context.Context) error {
		var err error
		out, err = r.store.Search(ctx, collection, vector, limit, filter, minScore)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) DeleteByDocumentID(ctx context.Context, collection, documentID string) error {
	return r.exec.Do(ctx, "delete_by_document", func(ctx context.Context) error {
		return r.store.DeleteByDocumentID(ctx, collection, documentID)
	})
}

func (r *Resilient) Count(ctx context.Context, collection string) (int, error) {
	var out int
	err := r.exec.Do(ctx, "count", func(ctx context.Context) error {
		var err error
		out, err = r.store.Count(ctx, collection)
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (r *Resilient) ScrollAll(ctx context.Context, collection string) ([]Point, error) {
	var out []Point
	err := r.exec.Do(ctx, "scroll", func(ctx context.Context) error {
		var err error
		out, err = r.store.ScrollAll(ctx, collection)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) DropCollection(ctx context.Context, collection string) error {
	return r.exec.Do(ctx, "drop_collection", func(ctx context.Context) error {
		return r.store.DropCollection(ctx, collection)
	})
}
