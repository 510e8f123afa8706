package graphstore

import (
	"context"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/resilience"
)

// Resilient wraps a Store with the shared graph-backend executor: retry,
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

func (r *Resilient) EnsureProject(ctx context.Context, project string) error {
	return r.exec.Do(ctx, "ensure_project", func(ctx context.Context) error {
		return r.store.EnsureProject(ctx, project)
	})
}

func (r *Resilient) UpsertRelationships(ctx context.Context, project string, relationships []memory.Relationship) error {
	return r.exec.Do(ctx, "upsert_relationships", func(ctx context.Context) error {
		return r.store.UpsertRelationships(ctx, project, relationships)
	})
}

func (r *Resilient) GetRelationships(ctx context.Context, project, entity string, direction Direction, relType string) ([]memory.Relationship, error) {
	var out []memory.Relationship
	err := r.exec.Do(ctx, "get_relationships", func(ctx context.Context) error {
		var err error
		out, err = r.store.GetRelationships(ctx, project, entity, direction, relType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) Traverse(ctx context.Context, project string, seeds []string, maxDepth int) (*Subgraph, error) {
	var out *Subgraph
	err := r.exec.Do(ctx, "traverse", func(ctx context.Context) error {
		var err error
		out, err = r.store.Traverse(ctx, project, seeds, maxDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) EntitiesForDocument(ctx context.Context, project, documentID string) ([]string, error) {
	var out []string
	err := r.exec.Do(ctx, "entities_for_document", func(ctx context.Context) error {
		var err error
		out, err = r.store.EntitiesForDocument(ctx, project, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) DeleteByDocumentID(ctx context.Context, project, documentID string) error {
	return r.exec.Do(ctx, "delete_by_document", func(ctx context.Context) error {
		return r.store.DeleteByDocumentID(ctx, project, documentID)
	})
}

func (r *Resilient) Stats(ctx context.Context, project string) (Stats, error) {
	var out Stats
	err := r.exec.Do(ctx, "stats", func(ctx context.Context) error {
		var err error
		out, err = r.store.Stats(ctx, project)
		return err
	})
	if err != nil {
		return Stats{}, err
	}
	return out, nil
}

func (r *Resilient) ExportAll(ctx context.Context, project string) ([]memory.Relationship, error) {
	var out []memory.Relationship
	err := r.exec.Do(ctx, "export_all", func(ctx context.Context) error {
		var err error
		out, err = r.store.ExportAll(ctx, project)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resilient) DropProject(ctx context.Context, project string) error {
	return r.exec.Do(ctx, "drop_project", func(ctx context.Context) error {
		return r.store.DropProject(ctx, project)
	})
}
