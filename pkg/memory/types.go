package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies where a document's content came from.
type SourceType string

const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
	SourceText SourceType = "text"
)

// ProcessingStatus tracks a document's progress through the ingestion pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is the unit of ingestion. It is owned by the project that
// ingested it and mutated only by the orchestrator during ingestion.
type Document struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	Metadata   DocumentMetadata `json:"metadata"`
	Source     DocumentSource   `json:"source"`
	Processing ProcessingInfo   `json:"processing"`
}

// DocumentMetadata holds caller-supplied document attributes.
type DocumentMetadata struct {
	Author    string    `json:"author,omitempty"`
	Type      string    `json:"type,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DocumentSource describes the origin of the content.
type DocumentSource struct {
	Type SourceType `json:"type"`
	Path string     `json:"path,omitempty"`
}

// ProcessingInfo records ingestion outcome on the document itself.
type ProcessingInfo struct {
	Status            ProcessingStatus `json:"status"`
	ChunkCount        int              `json:"chunk_count"`
	RelationshipCount int              `json:"relationship_count"`
	Summary           string           `json:"summary,omitempty"`
}

// chunkNamespace seeds deterministic chunk IDs so that re-ingesting the same
// document produces the same point IDs (overwrite, never duplicate).
var chunkNamespace = uuid.MustParse("9f2c1b44-5e0a-4f7d-8b3a-6c1d2e9a7f55")

// ChunkID derives the stable ID for a chunk from its document and ordinal.
func ChunkID(documentID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", documentID, ordinal))).String()
}

// Chunk is a bounded unit of document text with its own embedding.
// Chunks are created and destroyed atomically with their owning document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	TokenCount int       `json:"token_count"`
}

// Relationship is an extracted edge between two entities, tagged with the
// document it originated from. Its lifecycle is independent from chunk
// embeddings: a document may have zero relationships and still be completed.
type Relationship struct {
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Weight     float64        `json:"weight"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DocumentID string         `json:"document_id"`
}

// ProjectState is the lifecycle state of a project.
type ProjectState string

const (
	StateNotStarted ProjectState = "not_started"
	StateRunning    ProjectState = "running"
	StateStopping   ProjectState = "stopping"
	StateStopped    ProjectState = "stopped"
)

// Project is the isolation unit for memory state. Each project maps to one
// collection/namespace per backend.
type Project struct {
	ID         string       `json:"id"`
	State      ProjectState `json:"state"`
	Collection string       `json:"collection"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DocumentResult is the per-document outcome of an ingestion batch. Outcomes
// are independent: a batch of N documents can yield any mix of completed and
// failed entries.
type DocumentResult struct {
	DocumentID        string           `json:"document_id"`
	Status            ProcessingStatus `json:"status"`
	ChunkCount        int              `json:"chunk_count"`
	RelationshipCount int              `json:"relationship_count"`
	Summary           string           `json:"summary,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// IngestionResult aggregates per-document outcomes for one batch. Batch
// success does not imply all-documents success.
type IngestionResult struct {
	BatchID   string           `json:"batch_id"`
	ProjectID string           `json:"project_id"`
	Documents []DocumentResult `json:"documents"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Duration  time.Duration    `json:"duration"`
}
