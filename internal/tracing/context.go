package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ProjectIDKey is the context key for the project an operation acts on
	ProjectIDKey ContextKey = "project_id"
	// BatchIDKey is the context key for ingestion batch ID
	BatchIDKey ContextKey = "batch_id"
	// DocumentIDKey is the context key for the document being processed
	DocumentIDKey ContextKey = "document_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID    string
	ProjectID  string
	BatchID    string
	DocumentID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithProjectID adds a project ID to the context
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// WithBatchID adds an ingestion batch ID to the context
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

// WithDocumentID adds a document ID to the context
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetProjectID retrieves the project ID from the context
func GetProjectID(ctx context.Context) string {
	if projectID, ok := ctx.Value(ProjectIDKey).(string); ok {
		return projectID
	}
	return ""
}

// GetBatchID retrieves the batch ID from the context
func GetBatchID(ctx context.Context) string {
	if batchID, ok := ctx.Value(BatchIDKey).(string); ok {
		return batchID
	}
	return ""
}

// GetDocumentID retrieves the document ID from the context
func GetDocumentID(ctx context.Context) string {
	if documentID, ok := ctx.Value(DocumentIDKey).(string); ok {
		return documentID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		ProjectID:  GetProjectID(ctx),
		BatchID:    GetBatchID(ctx),
		DocumentID: GetDocumentID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.ProjectID != "" {
		ctx = WithProjectID(ctx, tc.ProjectID)
	}
	if tc.BatchID != "" {
		ctx = WithBatchID(ctx, tc.BatchID)
	}
	if tc.DocumentID != "" {
		ctx = WithDocumentID(ctx, tc.DocumentID)
	}
	return ctx
}

// NewOperationContext creates a context for one public engine operation with
// a fresh trace ID and the target project attached.
func NewOperationContext(ctx context.Context, projectID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithProjectID(ctx, projectID)
}
