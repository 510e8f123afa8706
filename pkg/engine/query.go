package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/observability"
	"github.com/IAmMonkeyBoy/context-memory-store/internal/tracing"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// QueryOptions tunes context retrieval.
type QueryOptions struct {
	// Limit caps returned chunks; 0 uses the engine default.
	Limit int

	// MinScore floors similarity; 0 uses the engine default, negative
	// disables the floor entirely.
	MinScore float64

	// IncludeRelationships enriches results with a graph traversal seeded by
	// the matched documents' entities.
	IncludeRelationships bool

	// TraversalDepth bounds the traversal; 0 means one hop.
	TraversalDepth int
}

// ContextChunk is one retrieved chunk with its similarity score.
type ContextChunk struct {
	DocumentID string         `json:"document_id"`
	Ordinal    int            `json:"ordinal"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ContextResult is the assembled context for a query. GraphDegraded is set
// when relationship enrichment was requested but the graph backend failed;
// the chunks are still valid.
type ContextResult struct {
	Query         string                `json:"query"`
	Chunks        []ContextChunk        `json:"chunks"`
	Entities      []string              `json:"entities,omitempty"`
	Relationships []memory.Relationship `json:"relationships,omitempty"`
	GraphDegraded bool                  `json:"graph_degraded,omitempty"`
}

// QueryContext embeds the query, searches the project's vectors and
// optionally walks the graph outward from the matched documents' entities.
func (e *Engine) QueryContext(ctx context.Context, projectID, query string, opts QueryOptions) (*ContextResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, memory.NewValidation("query is empty")
	}

	collection, done, err := e.admit(projectID)
	if err != nil {
		return nil, err
	}
	defer done()

	ctx = tracing.NewOperationContext(ctx, projectID)
	ctx, span := tracing.StartSpan(ctx, "engine", "query_context",
		attribute.String("project_id", projectID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = e.queryLimit
	}
	minScore := opts.MinScore
	switch {
	case minScore == 0:
		minScore = e.minScore
	case minScore < 0:
		minScore = 0
	}

	embeddings, err := e.llm.EmbedBatch(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		observability.RecordQuery(time.Since(start), false)
		return nil, err
	}

	hits, err := e.vectors.Search(ctx, collection, embeddings[0], limit, nil, minScore)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		observability.RecordQuery(time.Since(start), false)
		return nil, err
	}

	result := &ContextResult{
		Query:  query,
		Chunks: make([]ContextChunk, len(hits)),
	}
	for i, h := range hits {
		result.Chunks[i] = ContextChunk{
			DocumentID: h.DocumentID,
			Ordinal:    h.Ordinal,
			Text:       h.Text,
			Score:      h.Score,
			Payload:    h.Payload,
		}
	}

	if opts.IncludeRelationships && len(hits) > 0 {
		e.enrichWithGraph(ctx, collection, hits, opts.TraversalDepth, result, logger)
	}

	observability.RecordQuery(time.Since(start), true)
	logger.Debug().
		Int("chunks", len(result.Chunks)).
		Int("relationships", len(result.Relationships)).
		Bool("graph_degraded", result.GraphDegraded).
		Msg("Context query finished")

	return result, nil
}

// enrichWithGraph adds entities and relationships reachable from the matched
// documents. Graph failures degrade the result instead of failing the query.
func (e *Engine) enrichWithGraph(ctx context.Context, collection string, hits []vectorstore.ScoredPoint, depth int, result *ContextResult, logger zerolog.Logger) {
	if depth <= 0 {
		depth = 1
	}

	seedSet := make(map[string]bool)
	docSeen := make(map[string]bool)
	for _, h := range hits {
		if docSeen[h.DocumentID] {
			continue
		}
		docSeen[h.DocumentID] = true

		entities, err := e.graph.EntitiesForDocument(ctx, collection, h.DocumentID)
		if err != nil {
			logger.Warn().Err(err).Msg("Graph enrichment degraded")
			result.GraphDegraded = true
			return
		}
		for _, entity := range entities {
			seedSet[entity] = true
		}
	}
	if len(seedSet) == 0 {
		return
	}

	seeds := make([]string, 0, len(seedSet))
	for s := range seedSet {
		seeds = append(seeds, s)
	}
	sort.Strings(seeds)

	sub, err := e.graph.Traverse(ctx, collection, seeds, depth)
	if err != nil {
		logger.Warn().Err(err).Msg("Graph enrichment degraded")
		result.GraphDegraded = true
		return
	}
	result.Entities = sub.Entities
	result.Relationships = sub.Relationships
}

// SortOrder selects document search ordering.
type SortOrder string

const (
	SortByScore    SortOrder = "score"
	SortByDocument SortOrder = "document"
)

// SearchRequest describes a document search: similarity plus payload
// filtering, ordering and pagination. The graph is never involved.
type SearchRequest struct {
	Query    string
	Filters  map[string]any
	Sort     SortOrder
	Offset   int
	Limit    int
	MinScore float64
}

// SearchResult is one page of document search hits. WindowTotal counts the
// matches inside the fetched offset+limit window, not every match in the
// collection; an exhausted page is signalled by Chunks coming back short.
type SearchResult struct {
	WindowTotal int            `json:"window_total"`
	Chunks      []ContextChunk `json:"chunks"`
}

// SearchDocuments runs a filtered, paginated similarity search over the
// project's chunks.
func (e *Engine) SearchDocuments(ctx context.Context, projectID string, req SearchRequest) (*SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, memory.NewValidation("query is empty")
	}
	if req.Offset < 0 || req.Limit < 0 {
		return nil, memory.NewValidation("offset and limit must be non-negative")
	}

	collection, done, err := e.admit(projectID)
	if err != nil {
		return nil, err
	}
	defer done()

	ctx = tracing.NewOperationContext(ctx, projectID)

	limit := req.Limit
	if limit == 0 {
		limit = e.queryLimit
	}

	embeddings, err := e.llm.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}

	// Fetch the whole window so pagination and re-sorting happen on the full
	// candidate set.
	fetch := req.Offset + limit
	hits, err := e.vectors.Search(ctx, collection, embeddings[0], fetch, vectorstore.Filter(req.Filters), req.MinScore)
	if err != nil {
		return nil, err
	}

	if req.Sort == SortByDocument {
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].DocumentID != hits[j].DocumentID {
				return hits[i].DocumentID < hits[j].DocumentID
			}
			return hits[i].Ordinal < hits[j].Ordinal
		})
	}

	total := len(hits)
	if req.Offset < len(hits) {
		hits = hits[req.Offset:]
	} else {
		hits = nil
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	result := &SearchResult{
		WindowTotal: total,
		Chunks:      make([]ContextChunk, len(hits)),
	}
	for i, h := range hits {
		result.Chunks[i] = ContextChunk{
			DocumentID: h.DocumentID,
			Ordinal:    h.Ordinal,
			Text:       h.Text,
			Score:      h.Score,
			Payload:    h.Payload,
		}
	}
	return result, nil
}
