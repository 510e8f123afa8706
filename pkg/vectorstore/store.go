package vectorstore

import (
	"context"
)

// Point is one stored embedding with its chunk payload. Point IDs are
// deterministic per document and ordinal, so re-upserting a document
// overwrites its previous chunks instead of duplicating them.
type Point struct {
	ID         string
	Vector     []float32
	DocumentID string
	Ordinal    int
	Text       string
	Payload    map[string]any
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	Point
	Score float64
}

// Filter narrows a search to points whose payload fields equal the given
// values. Nil means no filtering.
type Filter map[string]any

// Store is the vector backend surface the engine depends on. A collection
// holds one project's embeddings; collections are isolated from each other.
type Store interface {
	// IsHealthy verifies the backend is reachable.
	IsHealthy(ctx context.Context) error

	// EnsureCollection creates the collection if it does not exist. Calling it
	// again with the same dimension is a no-op.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert writes points, replacing any existing points with the same IDs.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points most similar to vector, filtered and
	// floored at minScore, ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter, minScore float64) ([]ScoredPoint, error)

	// DeleteByDocumentID removes every point belonging to the document.
	DeleteByDocumentID(ctx context.Context, collection, documentID string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// ScrollAll enumerates every point in the collection, vectors included.
	ScrollAll(ctx context.Context, collection string) ([]Point, error)

	// DropCollection deletes the collection and all its points.
	DropCollection(ctx context.Context, collection string) error
}
