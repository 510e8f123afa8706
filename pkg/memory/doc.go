// Package memory defines the shared domain model for project-scoped memory:
// documents, chunks, extracted relationships, project lifecycle states, and
// the error taxonomy used across the engine and its backends.
//
// Invariants:
// - Chunk IDs are deterministic per (document, ordinal), so re-ingestion
//   replaces rather than duplicates.
// - Errors carry a kind that classifies them as validation, not-found,
//   conflict, unavailable or timeout; only unavailable and timeout are
//   retryable.
package memory
