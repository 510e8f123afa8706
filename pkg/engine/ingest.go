package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/observability"
	"github.com/IAmMonkeyBoy/context-memory-store/internal/tracing"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// IngestOptions controls optional pipeline stages.
type IngestOptions struct {
	// ProcessRelationships runs per-chunk extraction and graph upsert.
	ProcessRelationships bool

	// GenerateSummaries produces a short LLM summary per completed document.
	GenerateSummaries bool
}

// IngestDocuments runs the ingestion pipeline for a batch. Documents fan out
// over a bounded worker pool and fail independently: the returned result
// carries one outcome per document and the batch itself only errors on
// admission or validation problems.
func (e *Engine) IngestDocuments(ctx context.Context, projectID string, docs []memory.Document, opts IngestOptions) (*memory.IngestionResult, error) {
	if len(docs) == 0 {
		return nil, memory.NewValidation("batch contains no documents")
	}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return nil, memory.NewValidation("every document needs an ID")
		}
		if seen[doc.ID] {
			return nil, memory.NewValidation("duplicate document ID %s in batch", doc.ID)
		}
		seen[doc.ID] = true
	}

	collection, done, err := e.admit(projectID)
	if err != nil {
		return nil, err
	}
	defer done()

	batchID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate batch ID: %w", err)
	}

	ctx = tracing.NewOperationContext(ctx, projectID)
	ctx = tracing.WithBatchID(ctx, batchID)
	ctx, span := tracing.StartSpan(ctx, "engine", "ingest_documents",
		attribute.String("project_id", projectID),
		attribute.Int("document_count", len(docs)))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	logger.Info().
		Int("documents", len(docs)).
		Bool("relationships", opts.ProcessRelationships).
		Msg("Starting ingestion batch")

	start := time.Now()
	results := make([]memory.DocumentResult, len(docs))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, doc := range docs {
		wg.Add(1)
		go func(index int, doc memory.Document) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[index] = e.processDocument(ctx, collection, doc, opts)
		}(i, doc)
	}
	wg.Wait()

	result := &memory.IngestionResult{
		BatchID:   batchID,
		ProjectID: projectID,
		Documents: results,
		Duration:  time.Since(start),
	}
	for _, r := range results {
		if r.Status == memory.StatusCompleted {
			result.Completed++
		} else {
			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("completed", result.Completed),
		attribute.Int("failed", result.Failed))

	observability.RecordIngestBatch(result.Duration)
	status := "success"
	if result.Failed > 0 {
		status = "partial"
		if result.Completed == 0 {
			status = "failure"
		}
	}
	observability.RecordIngestAudit(ctx, projectID, status, map[string]interface{}{
		"batch_id":  batchID,
		"completed": result.Completed,
		"failed":    result.Failed,
	})

	logger.Info().
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Ingestion batch finished")

	return result, nil
}

// processDocument runs one document through the pipeline. The vector path
// decides success or failure; the relationship path and the summary only add
// warnings.
func (e *Engine) processDocument(ctx context.Context, collection string, doc memory.Document, opts IngestOptions) memory.DocumentResult {
	ctx = tracing.PropagateToDocument(ctx, doc.ID)
	logger := tracing.LoggerFromContext(ctx, e.logger)

	result := memory.DocumentResult{
		DocumentID: doc.ID,
		Status:     memory.StatusFailed,
	}
	defer func() {
		observability.RecordDocumentIngested(string(result.Status),
			result.ChunkCount, result.RelationshipCount, len(result.Warnings))
	}()

	if err := ctx.Err(); err != nil {
		result.Error = fmt.Sprintf("ingestion cancelled: %v", err)
		return result
	}

	fragments, err := e.chunker.Split(doc.Content)
	if err != nil {
		result.Error = err.Error()
		logger.Warn().Err(err).Msg("Document rejected by chunker")
		return result
	}

	chunks := make([]memory.Chunk, len(fragments))
	for i, f := range fragments {
		chunks[i] = memory.Chunk{
			ID:         memory.ChunkID(doc.ID, f.Ordinal),
			DocumentID: doc.ID,
			Ordinal:    f.Ordinal,
			Text:       f.Text,
			TokenCount: f.TokenCount,
		}
	}

	// The vector path and the relationship path run concurrently and fail
	// independently; there is no cross-store rollback.
	var pathWG sync.WaitGroup
	var vectorErr error
	var warnings []string
	var relationshipCount int
	var warnMu sync.Mutex

	pathWG.Add(1)
	go func() {
		defer pathWG.Done()
		vectorErr = e.runVectorPath(ctx, collection, doc, chunks)
	}()

	if opts.ProcessRelationships {
		pathWG.Add(1)
		go func() {
			defer pathWG.Done()
			count, warns := e.runRelationshipPath(ctx, collection, doc.ID, chunks)
			warnMu.Lock()
			relationshipCount = count
			warnings = append(warnings, warns...)
			warnMu.Unlock()
		}()
	}
	pathWG.Wait()

	result.Warnings = warnings
	if vectorErr != nil {
		result.Error = vectorErr.Error()
		logger.Error().Err(vectorErr).Msg("Document failed on vector path")
		return result
	}

	result.Status = memory.StatusCompleted
	result.ChunkCount = len(chunks)
	result.RelationshipCount = relationshipCount

	if opts.GenerateSummaries {
		summary, err := e.llm.Summarize(ctx, doc.Content, e.summaryMaxWords)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("summary generation failed: %v", err))
			logger.Warn().Err(err).Msg("Summary generation failed")
		} else {
			result.Summary = summary
		}
	}

	logger.Debug().
		Int("chunks", result.ChunkCount).
		Int("relationships", result.RelationshipCount).
		Int("warnings", len(result.Warnings)).
		Msg("Document completed")

	return result
}

// runVectorPath embeds the document's chunks and replaces its points. Any
// failure here fails the document.
func (e *Engine) runVectorPath(ctx context.Context, collection string, doc memory.Document, chunks []memory.Chunk) error {
	// Stale points from a previous ingest of this document are removed
	// first, so a re-ingest with fewer chunks leaves no orphans.
	if err := e.vectors.DeleteByDocumentID(ctx, collection, doc.ID); err != nil {
		return fmt.Errorf("failed to clear previous vectors: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := e.llm.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return memory.NewUnavailable(nil, "embedding returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:         c.ID,
			Vector:     embeddings[i],
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Payload:    documentPayload(doc),
		}
	}
	if err := e.vectors.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("vector upsert failed: %w", err)
	}
	return nil
}

// runRelationshipPath extracts and upserts relationships. It never fails the
// document: every failure becomes a warning and the count reflects only what
// actually reached the graph.
func (e *Engine) runRelationshipPath(ctx context.Context, collection, documentID string, chunks []memory.Chunk) (int, []string) {
	var warnings []string

	if err := e.graph.DeleteByDocumentID(ctx, collection, documentID); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to clear previous relationships: %v", err))
		return 0, warnings
	}

	var relationships []memory.Relationship
	for _, c := range chunks {
		rels, err := e.extractor.Extract(ctx, documentID, c.Text)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("relationship extraction failed for chunk %d: %v", c.Ordinal, err))
			continue
		}
		relationships = append(relationships, rels...)
	}

	if len(relationships) == 0 {
		return 0, warnings
	}
	if err := e.graph.UpsertRelationships(ctx, collection, relationships); err != nil {
		warnings = append(warnings, fmt.Sprintf("graph upsert failed: %v", err))
		return 0, warnings
	}
	return len(relationships), warnings
}

func documentPayload(doc memory.Document) map[string]any {
	payload := make(map[string]any)
	if doc.Metadata.Author != "" {
		payload["author"] = doc.Metadata.Author
	}
	if doc.Metadata.Type != "" {
		payload["type"] = doc.Metadata.Type
	}
	if len(doc.Metadata.Tags) > 0 {
		tags := make([]any, len(doc.Metadata.Tags))
		for i, t := range doc.Metadata.Tags {
			tags[i] = t
		}
		payload["tags"] = tags
	}
	if doc.Source.Type != "" {
		payload["source_type"] = string(doc.Source.Type)
	}
	if doc.Source.Path != "" {
		payload["source_path"] = doc.Source.Path
	}
	return payload
}
