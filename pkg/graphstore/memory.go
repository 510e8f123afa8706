package graphstore

import (
	"context"
	"sort"
	"sync"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Memory is an in-process Store for tests and embedded deployments.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*memGraph

	// UpsertErrFn injects an UpsertRelationships failure per call index
	// (0-based), exercising the relationship-path warning policy in tests.
	UpsertErrFn func(call int) error
	upsertCalls int
}

type memGraph struct {
	// keyed by source\x00type\x00target\x00documentID
	edges map[string]memory.Relationship
}

// NewMemory creates an empty in-memory graph store.
func NewMemory() *Memory {
	return &Memory{projects: make(map[string]*memGraph)}
}

func edgeKey(r memory.Relationship) string {
	return r.Source + "\x00" + r.Type + "\x00" + r.Target + "\x00" + r.DocumentID
}

func (m *Memory) IsHealthy(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) EnsureProject(ctx context.Context, project string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project]; !ok {
		m.projects[project] = &memGraph{edges: make(map[string]memory.Relationship)}
	}
	return nil
}

func (m *Memory) UpsertRelationships(ctx context.Context, project string, relationships []memory.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.upsertCalls
	m.upsertCalls++
	if m.UpsertErrFn != nil {
		if err := m.UpsertErrFn(call); err != nil {
			return err
		}
	}

	g, ok := m.projects[project]
	if !ok {
		return memory.NewNotFound("project %s has no graph", project)
	}
	for _, r := range relationships {
		g.edges[edgeKey(r)] = r
	}
	return nil
}

func (m *Memory) GetRelationships(ctx context.Context, project, entity string, direction Direction, relType string) ([]memory.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.projects[project]
	if !ok {
		return nil, memory.NewNotFound("project %s has no graph", project)
	}

	var out []memory.Relationship
	for _, r := range g.edges {
		if relType != "" && r.Type != relType {
			continue
		}
		switch direction {
		case DirectionOut:
			if r.Source != entity {
				continue
			}
		case DirectionIn:
			if r.Target != entity {
				continue
			}
		default:
			if r.Source != entity && r.Target != entity {
				continue
			}
		}
		out = append(out, r)
	}
	sortRelationships(out)
	return out, nil
}

func (m *Memory) Traverse(ctx context.Context, project string, seeds []string, maxDepth int) (*Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.projects[project]
	if !ok {
		return nil, memory.NewNotFound("project %s has no graph", project)
	}

	visited := make(map[string]bool, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			frontier = append(frontier, s)
		}
	}

	collected := make(map[string]memory.Relationship)
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		inFrontier := make(map[string]bool, len(frontier))
		for _, e := range frontier {
			inFrontier[e] = true
		}

		var next []string
		for key, r := range g.edges {
			if !inFrontier[r.Source] && !inFrontier[r.Target] {
				continue
			}
			collected[key] = r
			for _, entity := range []string{r.Source, r.Target} {
				if !visited[entity] {
					visited[entity] = true
					next = append(next, entity)
				}
			}
		}
		frontier = next
	}

	sub := &Subgraph{
		Entities:      make([]string, 0, len(visited)),
		Relationships: make([]memory.Relationship, 0, len(collected)),
	}
	for entity := range visited {
		sub.Entities = append(sub.Entities, entity)
	}
	sort.Strings(sub.Entities)
	for _, r := range collected {
		sub.Relationships = append(sub.Relationships, r)
	}
	sortRelationships(sub.Relationships)
	return sub, nil
}

func (m *Memory) EntitiesForDocument(ctx context.Context, project, documentID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.projects[project]
	if !ok {
		return nil, memory.NewNotFound("project %s has no graph", project)
	}

	set := make(map[string]bool)
	for _, r := range g.edges {
		if r.DocumentID == documentID {
			set[r.Source] = true
			set[r.Target] = true
		}
	}
	entities := make([]string, 0, len(set))
	for e := range set {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	return entities, nil
}

func (m *Memory) DeleteByDocumentID(ctx context.Context, project, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.projects[project]
	if !ok {
		return memory.NewNotFound("project %s has no graph", project)
	}
	for key, r := range g.edges {
		if r.DocumentID == documentID {
			delete(g.edges, key)
		}
	}
	return nil
}

func (m *Memory) Stats(ctx context.Context, project string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.projects[project]
	if !ok {
		return Stats{}, memory.NewNotFound("project %s has no graph", project)
	}

	entities := make(map[string]bool)
	for _, r := range g.edges {
		entities[r.Source] = true
		entities[r.Target] = true
	}
	return Stats{Entities: len(entities), Relationships: len(g.edges)}, nil
}

func (m *Memory) ExportAll(ctx context.Context, project string) ([]memory.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.projects[project]
	if !ok {
		return nil, memory.NewNotFound("project %s has no graph", project)
	}

	out := make([]memory.Relationship, 0, len(g.edges))
	for _, r := range g.edges {
		out = append(out, r)
	}
	sortRelationships(out)
	return out, nil
}

func (m *Memory) DropProject(ctx context.Context, project string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, project)
	return nil
}

func sortRelationships(rels []memory.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.DocumentID < b.DocumentID
	})
}
