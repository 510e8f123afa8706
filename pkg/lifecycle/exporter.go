package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// Snapshot is a full export of a project's memory state: every stored vector
// point and every graph edge, plus the message the caller attached to it.
type Snapshot struct {
	ProjectID     string                `json:"project_id"`
	Message       string                `json:"message,omitempty"`
	ExportedAt    time.Time             `json:"exported_at"`
	Points        []vectorstore.Point   `json:"points"`
	Relationships []memory.Relationship `json:"relationships"`
}

// Exporter persists a snapshot somewhere durable.
type Exporter interface {
	Export(ctx context.Context, snap *Snapshot) error
}

// FileExporter writes snapshots as JSON under a base directory, one
// subdirectory per project. Writes are atomic: a temp file is renamed over
// the previous snapshot, so a crash mid-export never leaves a torn file.
type FileExporter struct {
	dir string
}

// NewFileExporter creates an exporter rooted at dir. The directory is created
// on first export, not here.
func NewFileExporter(dir string) (*FileExporter, error) {
	if dir == "" {
		return nil, memory.NewValidation("snapshot directory is required")
	}
	return &FileExporter{dir: dir}, nil
}

func (f *FileExporter) Export(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Base(snap.ProjectID) != snap.ProjectID {
		return memory.NewValidation("project ID %q is not a safe path component", snap.ProjectID)
	}

	projectDir := filepath.Join(f.dir, snap.ProjectID)
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	target := filepath.Join(projectDir, "snapshot.json")
	tmp, err := os.CreateTemp(projectDir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// SnapshotPath returns where the project's current snapshot lives.
func (f *FileExporter) SnapshotPath(projectID string) string {
	return filepath.Join(f.dir, projectID, "snapshot.json")
}
