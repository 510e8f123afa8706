package engine

import (
	"context"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// SnapshotVectors enumerates every stored point of the project for export.
// Snapshots are allowed while the project is Running or Stopping: the stop
// sequence itself exports after the fence closes.
func (e *Engine) SnapshotVectors(ctx context.Context, projectID string) ([]vectorstore.Point, error) {
	collection, err := e.admitSnapshot(projectID)
	if err != nil {
		return nil, err
	}
	return e.vectors.ScrollAll(ctx, collection)
}

// SnapshotRelationships enumerates every graph edge of the project for
// export.
func (e *Engine) SnapshotRelationships(ctx context.Context, projectID string) ([]memory.Relationship, error) {
	collection, err := e.admitSnapshot(projectID)
	if err != nil {
		return nil, err
	}
	return e.graph.ExportAll(ctx, collection)
}

// GraphStats returns the project's entity and relationship counts.
func (e *Engine) GraphStats(ctx context.Context, projectID string) (int, int, error) {
	collection, err := e.admitSnapshot(projectID)
	if err != nil {
		return 0, 0, err
	}
	stats, err := e.graph.Stats(ctx, collection)
	if err != nil {
		return 0, 0, err
	}
	return stats.Entities, stats.Relationships, nil
}

// VectorCount returns the number of stored chunks for the project.
func (e *Engine) VectorCount(ctx context.Context, projectID string) (int, error) {
	collection, err := e.admitSnapshot(projectID)
	if err != nil {
		return 0, err
	}
	return e.vectors.Count(ctx, collection)
}

func (e *Engine) admitSnapshot(projectID string) (string, error) {
	if projectID == "" {
		return "", memory.NewValidation("project ID is required")
	}
	state, known := e.states.ProjectState(projectID)
	if !known {
		return "", memory.NewNotFound("project %s is unknown", projectID)
	}
	if state != memory.StateRunning && state != memory.StateStopping {
		return "", memory.NewConflict("project %s is %s, nothing to snapshot", projectID, state)
	}
	return e.states.Collection(projectID), nil
}
