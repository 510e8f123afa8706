package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToDocument derives a per-document context from an ingestion batch
// context: the trace, project and batch IDs carry over, the document ID is
// set for the pipeline's log lines.
func PropagateToDocument(ctx context.Context, documentID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithDocumentID(ctx, documentID)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.ProjectID != "" {
		logger = logger.With().Str("project_id", tc.ProjectID).Logger()
	}
	if tc.BatchID != "" {
		logger = logger.With().Str("batch_id", tc.BatchID).Logger()
	}
	if tc.DocumentID != "" {
		logger = logger.With().Str("document_id", tc.DocumentID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context
// Useful when you need to combine contexts from different sources
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.ProjectID != "" && GetProjectID(target) == "" {
		target = WithProjectID(target, tc.ProjectID)
	}
	if tc.BatchID != "" && GetBatchID(target) == "" {
		target = WithBatchID(target, tc.BatchID)
	}
	if tc.DocumentID != "" && GetDocumentID(target) == "" {
		target = WithDocumentID(target, tc.DocumentID)
	}

	return target
}

// CloneContext creates a new context with the same tracing information,
// detached from the original's cancellation. Used when a drain must outlive
// the request that triggered it.
func CloneContext(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	return NewContext(context.Background(), tc)
}
