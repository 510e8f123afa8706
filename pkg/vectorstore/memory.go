package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Memory is an in-process Store with cosine similarity. It backs tests and
// single-node embedded deployments where running Qdrant is not worth it.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection

	// UpsertErrFn injects an Upsert failure, keyed by call index (0-based)
	// and the points being written, exercising the vector-path failure
	// policy in tests.
	UpsertErrFn func(call int, points []Point) error
	upsertCalls int
}

type memCollection struct {
	dimension int
	points    map[string]Point
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) IsHealthy(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return memory.NewValidation("collection %s: dimension must be positive", collection)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.collections[collection]; ok {
		if existing.dimension != dimension {
			return memory.NewConflict("collection %s exists with dimension %d, requested %d", collection, existing.dimension, dimension)
		}
		return nil
	}
	m.collections[collection] = &memCollection{
		dimension: dimension,
		points:    make(map[string]Point),
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.upsertCalls
	m.upsertCalls++
	if m.UpsertErrFn != nil {
		if err := m.UpsertErrFn(call, points); err != nil {
			return err
		}
	}

	col, ok := m.collections[collection]
	if !ok {
		return memory.NewNotFound("collection %s does not exist", collection)
	}
	for _, p := range points {
		if len(p.Vector) != col.dimension {
			return memory.NewValidation("point %s: vector dimension %d, collection expects %d", p.ID, len(p.Vector), col.dimension)
		}
		col.points[p.ID] = p
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter, minScore float64) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, memory.NewNotFound("collection %s does not exist", collection)
	}

	hits := make([]ScoredPoint, 0, limit)
	for _, p := range col.points {
		if !matches(p, filter) {
			continue
		}
		score := cosine(vector, p.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, ScoredPoint{Point: p, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) DeleteByDocumentID(ctx context.Context, collection, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		return memory.NewNotFound("collection %s does not exist", collection)
	}
	for id, p := range col.points {
		if p.DocumentID == documentID {
			delete(col.points, id)
		}
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return 0, memory.NewNotFound("collection %s does not exist", collection)
	}
	return len(col.points), nil
}

func (m *Memory) ScrollAll(ctx context.Context, collection string) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, memory.NewNotFound("collection %s does not exist", collection)
	}

	points := make([]Point, 0, len(col.points))
	for _, p := range col.points {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].DocumentID != points[j].DocumentID {
			return points[i].DocumentID < points[j].DocumentID
		}
		return points[i].Ordinal < points[j].Ordinal
	})
	return points, nil
}

func (m *Memory) DropCollection(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func matches(p Point, filter Filter) bool {
	for key, want := range filter {
		var got any
		switch key {
		case "document_id":
			got = p.DocumentID
		default:
			got = p.Payload[key]
		}
		if got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
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
