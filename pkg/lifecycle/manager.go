package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/observability"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/graphstore"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// Orchestrator is the slice of the engine the lifecycle manager depends on:
// draining in-flight work before a stop completes, and enumerating state for
// snapshot export. The engine in turn reads project state back through the
// manager's StateSource methods.
type Orchestrator interface {
	Drain(ctx context.Context, projectID string) error
	SnapshotVectors(ctx context.Context, projectID string) ([]vectorstore.Point, error)
	SnapshotRelationships(ctx context.Context, projectID string) ([]memory.Relationship, error)
}

// Config wires a Manager. Vectors, Graph and LLM are required; Exporter and
// SnapshotSpec are optional.
type Config struct {
	Vectors  vectorstore.Store
	Graph    graphstore.Store
	LLM      llm.Service
	Exporter Exporter
	Logger   zerolog.Logger

	// DrainTimeout bounds how long Stop waits for in-flight operations.
	// Defaults to 30s. A timed-out drain is logged and the stop proceeds.
	DrainTimeout time.Duration

	// SnapshotSpec is an optional cron expression; when set, every running
	// project is exported on that schedule.
	SnapshotSpec string
}

// BackendHealth is one backend's live health in a status report.
type BackendHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProjectStatus is the state plus live backend health for one project.
type ProjectStatus struct {
	ProjectID   string              `json:"project_id"`
	State       memory.ProjectState `json:"state"`
	VectorStore BackendHealth       `json:"vector_store"`
	GraphStore  BackendHealth       `json:"graph_store"`
	LLM         BackendHealth       `json:"llm"`
}

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Manager owns the per-project state machine: NotStarted → Running →
// Stopping → Stopped. It is the engine's StateSource; the fence lives here
// (admission reads state through ProjectState) while draining and snapshot
// enumeration go back through the engine.
type Manager struct {
	vectors  vectorstore.Store
	graph    graphstore.Store
	llm      llm.Service
	exporter Exporter
	logger   zerolog.Logger

	drainTimeout time.Duration

	mu       sync.Mutex
	projects map[string]*memory.Project
	starting map[string]bool
	engine   Orchestrator

	cron *cron.Cron
}

// New creates a Manager and starts the snapshot schedule if one is
// configured. Call Close to stop the schedule.
func New(cfg Config) (*Manager, error) {
	if cfg.Vectors == nil || cfg.Graph == nil || cfg.LLM == nil {
		return nil, memory.NewValidation("vectors, graph and llm backends are required")
	}
	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}

	m := &Manager{
		vectors:      cfg.Vectors,
		graph:        cfg.Graph,
		llm:          cfg.LLM,
		exporter:     cfg.Exporter,
		logger:       cfg.Logger.With().Str("component", "lifecycle").Logger(),
		drainTimeout: drainTimeout,
		projects:     make(map[string]*memory.Project),
		starting:     make(map[string]bool),
	}

	if cfg.SnapshotSpec != "" {
		if cfg.Exporter == nil {
			return nil, memory.NewValidation("snapshot schedule requires an exporter")
		}
		c := cron.New()
		if _, err := c.AddFunc(cfg.SnapshotSpec, m.snapshotAll); err != nil {
			return nil, memory.NewValidation("invalid snapshot schedule %q: %v", cfg.SnapshotSpec, err)
		}
		c.Start()
		m.cron = c
	}
	return m, nil
}

// AttachEngine binds the orchestrator after construction. The manager and
// the engine reference each other, so one of the two bindings has to be late.
func (m *Manager) AttachEngine(o Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = o
}

// Close stops the snapshot schedule. Running projects are left running.
func (m *Manager) Close() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// ProjectState implements the engine's StateSource.
func (m *Manager) ProjectState(projectID string) (memory.ProjectState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return memory.StateNotStarted, false
	}
	return p.State, true
}

// Collection implements the engine's StateSource.
func (m *Manager) Collection(projectID string) string {
	return collectionName(projectID)
}

func collectionName(projectID string) string {
	return "memory-" + projectID
}

// Start brings a project to Running: both stores must be healthy and the
// project's collection and graph namespace must exist. Starting a project
// that is already Running (or still Stopping) is a Conflict; a Stopped
// project can be started again.
func (m *Manager) Start(ctx context.Context, projectID string) error {
	if !projectIDPattern.MatchString(projectID) {
		return memory.NewValidation("project ID %q is invalid", projectID)
	}

	m.mu.Lock()
	if p, ok := m.projects[projectID]; ok {
		if p.State == memory.StateRunning {
			m.mu.Unlock()
			return memory.NewConflict("project %s is already running", projectID)
		}
		if p.State == memory.StateStopping {
			m.mu.Unlock()
			return memory.NewConflict("project %s is still stopping", projectID)
		}
	}
	if m.starting[projectID] {
		m.mu.Unlock()
		return memory.NewConflict("project %s is already starting", projectID)
	}
	m.starting[projectID] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.starting, projectID)
		m.mu.Unlock()
	}()

	if err := m.vectors.IsHealthy(ctx); err != nil {
		m.audit(ctx, "project_started", projectID, "failure", map[string]interface{}{"reason": "vector store unhealthy"})
		return memory.NewUnavailable(err, "vector store is unhealthy")
	}
	if err := m.graph.IsHealthy(ctx); err != nil {
		m.audit(ctx, "project_started", projectID, "failure", map[string]interface{}{"reason": "graph store unhealthy"})
		return memory.NewUnavailable(err, "graph store is unhealthy")
	}

	collection := collectionName(projectID)
	if err := m.vectors.EnsureCollection(ctx, collection, m.llm.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure vector collection: %w", err)
	}
	if err := m.graph.EnsureProject(ctx, collection); err != nil {
		return fmt.Errorf("failed to ensure graph namespace: %w", err)
	}

	m.mu.Lock()
	m.projects[projectID] = &memory.Project{
		ID:         projectID,
		State:      memory.StateRunning,
		Collection: collection,
		CreatedAt:  time.Now(),
	}
	running := m.runningLocked()
	m.mu.Unlock()

	observability.SetProjectsRunning(running)
	m.audit(ctx, "project_started", projectID, "success", nil)
	m.logger.Info().Str("project", projectID).Msg("Project started")
	return nil
}

// Stop fences the project, drains in-flight work, exports a snapshot and
// marks it Stopped. Stopping a project that never started or already stopped
// is a no-op. Snapshot failure is logged, not fatal: a project must always be
// stoppable.
func (m *Manager) Stop(ctx context.Context, projectID, message string) error {
	m.mu.Lock()
	p, ok := m.projects[projectID]
	if !ok || p.State == memory.StateStopped {
		m.mu.Unlock()
		return nil
	}
	if p.State == memory.StateStopping {
		m.mu.Unlock()
		return memory.NewConflict("project %s is already stopping", projectID)
	}
	// The fence: from here on, admission rejects new operations.
	p.State = memory.StateStopping
	engine := m.engine
	m.mu.Unlock()

	logger := m.logger.With().Str("project", projectID).Logger()

	if engine != nil {
		drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
		err := engine.Drain(drainCtx, projectID)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Drain did not finish, stopping anyway")
		}
	}

	if m.exporter != nil && engine != nil {
		if err := m.exportSnapshot(ctx, engine, projectID, message); err != nil {
			logger.Warn().Err(err).Msg("Snapshot export failed during stop")
		}
	}

	m.mu.Lock()
	p.State = memory.StateStopped
	running := m.runningLocked()
	m.mu.Unlock()

	observability.SetProjectsRunning(running)
	m.audit(ctx, "project_stopped", projectID, "success", map[string]interface{}{"message": message})
	logger.Info().Msg("Project stopped")
	return nil
}

// Running returns the IDs of the projects currently in the Running state.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.projects))
	for id, p := range m.projects {
		if p.State == memory.StateRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Status reports the project's state along with live backend health. Unknown
// projects report NotStarted rather than an error, so callers can poll before
// the first Start.
func (m *Manager) Status(ctx context.Context, projectID string) *ProjectStatus {
	state, _ := m.ProjectState(projectID)

	status := &ProjectStatus{
		ProjectID: projectID,
		State:     state,
	}
	status.VectorStore = checkHealth(m.vectors.IsHealthy(ctx))
	status.GraphStore = checkHealth(m.graph.IsHealthy(ctx))
	status.LLM = checkHealth(m.llm.IsHealthy(ctx))
	return status
}

func checkHealth(err error) BackendHealth {
	if err != nil {
		return BackendHealth{Healthy: false, Error: err.Error()}
	}
	return BackendHealth{Healthy: true}
}

// Delete tears down the project's backend state. The project must not be
// Running or Stopping.
func (m *Manager) Delete(ctx context.Context, projectID string) error {
	m.mu.Lock()
	if p, ok := m.projects[projectID]; ok {
		if p.State == memory.StateRunning || p.State == memory.StateStopping {
			m.mu.Unlock()
			return memory.NewConflict("project %s is %s, stop it before deleting", projectID, p.State)
		}
	}
	m.mu.Unlock()

	collection := collectionName(projectID)
	if err := m.vectors.DropCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to drop vector collection: %w", err)
	}
	if err := m.graph.DropProject(ctx, collection); err != nil {
		return fmt.Errorf("failed to drop graph namespace: %w", err)
	}

	m.mu.Lock()
	delete(m.projects, projectID)
	m.mu.Unlock()

	m.audit(ctx, "project_deleted", projectID, "success", nil)
	m.logger.Info().Str("project", projectID).Msg("Project deleted")
	return nil
}

// Snapshot exports the project's current state on demand. The project must
// be Running.
func (m *Manager) Snapshot(ctx context.Context, projectID, message string) error {
	m.mu.Lock()
	p, ok := m.projects[projectID]
	engine := m.engine
	m.mu.Unlock()

	if !ok {
		return memory.NewNotFound("project %s is unknown", projectID)
	}
	if p.State != memory.StateRunning {
		return memory.NewConflict("project %s is %s, nothing to snapshot", projectID, p.State)
	}
	if m.exporter == nil {
		return memory.NewValidation("no snapshot exporter configured")
	}
	if engine == nil {
		return memory.NewValidation("no engine attached")
	}
	return m.exportSnapshot(ctx, engine, projectID, message)
}

func (m *Manager) exportSnapshot(ctx context.Context, engine Orchestrator, projectID, message string) error {
	start := time.Now()

	points, err := engine.SnapshotVectors(ctx, projectID)
	if err == nil {
		var relationships []memory.Relationship
		relationships, err = engine.SnapshotRelationships(ctx, projectID)
		if err == nil {
			err = m.exporter.Export(ctx, &Snapshot{
				ProjectID:     projectID,
				Message:       message,
				ExportedAt:    time.Now().UTC(),
				Points:        points,
				Relationships: relationships,
			})
		}
	}

	observability.RecordSnapshot(time.Since(start), err == nil)
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.RecordSnapshotAudit(ctx, projectID, status, map[string]interface{}{"message": message})
	return err
}

// snapshotAll exports every running project; scheduled exports never
// interrupt anything, failures are only logged.
func (m *Manager) snapshotAll() {
	m.mu.Lock()
	var running []string
	for id, p := range m.projects {
		if p.State == memory.StateRunning {
			running = append(running, id)
		}
	}
	m.mu.Unlock()

	ctx := context.Background()
	for _, projectID := range running {
		if err := m.Snapshot(ctx, projectID, "scheduled"); err != nil {
			m.logger.Warn().Err(err).Str("project", projectID).Msg("Scheduled snapshot failed")
		}
	}
}

func (m *Manager) runningLocked() int {
	count := 0
	for _, p := range m.projects {
		if p.State == memory.StateRunning {
			count++
		}
	}
	return count
}

func (m *Manager) audit(ctx context.Context, action, projectID, status string, metadata map[string]interface{}) {
	observability.RecordLifecycleAudit(ctx, action, projectID, status, metadata)
}
