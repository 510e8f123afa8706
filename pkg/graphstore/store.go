package graphstore

import (
	"context"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Direction selects which edges of an entity a query returns.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Subgraph is the result of a traversal: every entity reached plus the edges
// connecting them.
type Subgraph struct {
	Entities      []string              `json:"entities"`
	Relationships []memory.Relationship `json:"relationships"`
}

// Stats summarizes one project's graph.
type Stats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// Store is the graph backend surface the engine depends on. Each project's
// entities and edges are isolated from every other project's.
type Store interface {
	// IsHealthy verifies the backend is reachable.
	IsHealthy(ctx context.Context) error

	// EnsureProject prepares backend structures for the project. Idempotent.
	EnsureProject(ctx context.Context, project string) error

	// UpsertRelationships merges entities and edges. An identical edge from
	// the same document is overwritten, not duplicated.
	UpsertRelationships(ctx context.Context, project string, relationships []memory.Relationship) error

	// GetRelationships returns the entity's edges in the given direction,
	// optionally restricted to one relationship type (empty means all).
	GetRelationships(ctx context.Context, project, entity string, direction Direction, relType string) ([]memory.Relationship, error)

	// Traverse walks outward from the seed entities up to maxDepth hops,
	// following edges in both directions.
	Traverse(ctx context.Context, project string, seeds []string, maxDepth int) (*Subgraph, error)

	// EntitiesForDocument returns every entity touched by the document's
	// edges.
	EntitiesForDocument(ctx context.Context, project, documentID string) ([]string, error)

	// DeleteByDocumentID removes the document's edges and any entities left
	// without edges.
	DeleteByDocumentID(ctx context.Context, project, documentID string) error

	// Stats returns entity and relationship counts.
	Stats(ctx context.Context, project string) (Stats, error)

	// ExportAll returns every edge in the project, for snapshots.
	ExportAll(ctx context.Context, project string) ([]memory.Relationship, error)

	// DropProject deletes the project's entire graph.
	DropProject(ctx context.Context, project string) error
}
