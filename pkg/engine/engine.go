package engine

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/chunker"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/extract"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/graphstore"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

// StateSource reports project lifecycle state for admission checks. The
// lifecycle manager implements it; the engine never mutates state itself.
type StateSource interface {
	// ProjectState returns the project's state and whether it is known.
	ProjectState(projectID string) (memory.ProjectState, bool)

	// Collection returns the backend collection/namespace for the project.
	Collection(projectID string) string
}

// Config wires an Engine. Vectors, Graph, LLM, States and Chunker are
// required.
type Config struct {
	Vectors vectorstore.Store
	Graph   graphstore.Store
	LLM     llm.Service
	Chunker *chunker.Chunker
	States  StateSource
	Logger  zerolog.Logger

	// Workers bounds document-level ingestion fan-out. Defaults to NumCPU.
	Workers int

	// DefaultQueryLimit caps context retrieval hits when the caller does not
	// set one.
	DefaultQueryLimit int

	// DefaultMinScore floors similarity for context retrieval when the
	// caller does not set one.
	DefaultMinScore float64

	// SummaryMaxWords bounds generated document summaries.
	SummaryMaxWords int
}

// Engine is the memory orchestrator: it owns the ingestion pipeline, context
// retrieval, document search, streamed analysis and the snapshot surface.
// All state lives in the backends; the engine itself only tracks in-flight
// work so the lifecycle manager can drain it.
type Engine struct {
	vectors   vectorstore.Store
	graph     graphstore.Store
	llm       llm.Service
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	states    StateSource
	logger    zerolog.Logger

	workers         int
	queryLimit      int
	minScore        float64
	summaryMaxWords int

	mu       sync.Mutex
	inflight map[string]*sync.WaitGroup
}

// New creates an Engine.
func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	queryLimit := cfg.DefaultQueryLimit
	if queryLimit <= 0 {
		queryLimit = 10
	}
	minScore := cfg.DefaultMinScore
	if minScore <= 0 {
		minScore = 0.3
	}
	summaryMaxWords := cfg.SummaryMaxWords
	if summaryMaxWords <= 0 {
		summaryMaxWords = 60
	}

	return &Engine{
		vectors:         cfg.Vectors,
		graph:           cfg.Graph,
		llm:             cfg.LLM,
		extractor:       extract.New(cfg.LLM, cfg.Logger),
		chunker:         cfg.Chunker,
		states:          cfg.States,
		logger:          cfg.Logger.With().Str("component", "engine").Logger(),
		workers:         workers,
		queryLimit:      queryLimit,
		minScore:        minScore,
		summaryMaxWords: summaryMaxWords,
	}
}

// admit rejects operations against projects that are not Running and, on
// success, registers the operation as in-flight. The returned func must be
// called when the work finishes. Stopping counts as not running: the fence
// closes as soon as a stop begins. Registration happens before the state is
// re-checked, so a stop that fences the project concurrently either sees the
// registration when draining or forces the back-out below.
func (e *Engine) admit(projectID string) (string, func(), error) {
	if projectID == "" {
		return "", nil, memory.NewValidation("project ID is required")
	}
	state, known := e.states.ProjectState(projectID)
	if !known {
		return "", nil, memory.NewNotFound("project %s is unknown", projectID)
	}
	if state != memory.StateRunning {
		return "", nil, memory.NewConflict("project %s is %s, not running", projectID, state)
	}

	done := e.beginOp(projectID)
	if state, _ := e.states.ProjectState(projectID); state != memory.StateRunning {
		done()
		return "", nil, memory.NewConflict("project %s is %s, not running", projectID, state)
	}
	return e.states.Collection(projectID), done, nil
}

// beginOp registers in-flight work for the project. Callers go through
// admit, which pairs registration with the fence re-check.
func (e *Engine) beginOp(projectID string) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight == nil {
		e.inflight = make(map[string]*sync.WaitGroup)
	}
	wg := e.inflight[projectID]
	if wg == nil {
		wg = &sync.WaitGroup{}
		e.inflight[projectID] = wg
	}
	wg.Add(1)
	return wg.Done
}

// Drain blocks until the project's in-flight operations finish or ctx
// expires. New operations are assumed to be fenced off by the caller before
// draining.
func (e *Engine) Drain(ctx context.Context, projectID string) error {
	e.mu.Lock()
	wg := e.inflight[projectID]
	e.mu.Unlock()
	if wg == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return memory.NewTimeout(ctx.Err(), "drain of project %s did not finish", projectID)
	}
}
