package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/chunker"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/graphstore"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/llm"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
	"github.com/IAmMonkeyBoy/context-memory-store/pkg/vectorstore"
)

const testDimension = 256

// fakeStates is a StateSource with directly settable states.
type fakeStates struct {
	mu     sync.Mutex
	states map[string]memory.ProjectState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[string]memory.ProjectState)}
}

func (f *fakeStates) set(projectID string, state memory.ProjectState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[projectID] = state
}

func (f *fakeStates) ProjectState(projectID string) (memory.ProjectState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[projectID]
	return state, ok
}

func (f *fakeStates) Collection(projectID string) string {
	return "mem-" + projectID
}

type testRig struct {
	engine  *Engine
	vectors *vectorstore.Memory
	graph   *graphstore.Memory
	llm     *llm.Fake
	states  *fakeStates
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	vectors := vectorstore.NewMemory()
	graph := graphstore.NewMemory()
	fake := llm.NewFake(testDimension)
	states := newFakeStates()

	ck, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)

	eng := New(Config{
		Vectors: vectors,
		Graph:   graph,
		LLM:     fake,
		Chunker: ck,
		States:  states,
		Logger:  zerolog.Nop(),
		Workers: 4,
	})
	return &testRig{engine: eng, vectors: vectors, graph: graph, llm: fake, states: states}
}

// startProject marks the project running and prepares its backends, the way
// the lifecycle manager does.
func (r *testRig) startProject(t *testing.T, projectID string) {
	t.Helper()
	ctx := context.Background()
	collection := r.states.Collection(projectID)
	require.NoError(t, r.vectors.EnsureCollection(ctx, collection, testDimension))
	require.NoError(t, r.graph.EnsureProject(ctx, collection))
	r.states.set(projectID, memory.StateRunning)
}

func extractionReply(edges string) func(system, user string) (string, error) {
	return func(system, user string) (string, error) {
		return edges, nil
	}
}

const twoEdgeReply = `[
	{"type": "RELATES_TO", "source": "A", "target": "B"},
	{"type": "RELATES_TO", "source": "B", "target": "C"}
]`

func TestIngestSingleDocumentWithRelationships(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply(twoEdgeReply)

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B. B relates to C."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	require.Len(t, result.Documents, 1)
	doc := result.Documents[0]
	assert.Equal(t, memory.StatusCompleted, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, 2, doc.RelationshipCount)
	assert.Empty(t, doc.Warnings)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.NotEmpty(t, result.BatchID)

	count, err := rig.vectors.Count(context.Background(), "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	edges, err := rig.graph.ExportAll(context.Background(), "mem-proj")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, edge := range edges {
		assert.Equal(t, "doc1", edge.DocumentID)
	}
}

func TestQueryContextReturnsRelevantChunkAndRelationships(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply(twoEdgeReply)

	_, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B. B relates to C."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	result, err := rig.engine.QueryContext(context.Background(), "proj", "A", QueryOptions{
		Limit:                5,
		MinScore:             0.3,
		IncludeRelationships: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	top := result.Chunks[0]
	assert.Equal(t, "doc1", top.DocumentID)
	assert.GreaterOrEqual(t, top.Score, 0.3)

	assert.False(t, result.GraphDegraded)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, result.Entities)
	assert.Len(t, result.Relationships, 2)
}

func TestIngestVectorFailureFailsOnlyThatDocument(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")

	rig.vectors.UpsertErrFn = func(call int, points []vectorstore.Point) error {
		if len(points) > 0 && points[0].DocumentID == "doc-3" {
			return memory.NewUnavailable(nil, "qdrant down")
		}
		return nil
	}

	docs := make([]memory.Document, 10)
	for i := range docs {
		docs[i] = memory.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("document %d talks about topic %d", i, i),
		}
	}

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", docs, IngestOptions{})
	require.NoError(t, err, "a failed document is an outcome, not a batch error")

	assert.Equal(t, 9, result.Completed)
	assert.Equal(t, 1, result.Failed)
	for _, doc := range result.Documents {
		if doc.DocumentID == "doc-3" {
			assert.Equal(t, memory.StatusFailed, doc.Status)
			assert.Contains(t, doc.Error, "vector upsert failed")
			assert.Equal(t, 0, doc.ChunkCount)
		} else {
			assert.Equal(t, memory.StatusCompleted, doc.Status, "sibling %s must be unaffected", doc.DocumentID)
		}
	}

	count, err := rig.vectors.Count(context.Background(), "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestIngestGraphFailureCompletesWithWarnings(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply(twoEdgeReply)

	rig.graph.UpsertErrFn = func(call int) error {
		return memory.NewUnavailable(nil, "neo4j down")
	}

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B. B relates to C."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	doc := result.Documents[0]
	assert.Equal(t, memory.StatusCompleted, doc.Status, "graph failure must not fail the document")
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, 0, doc.RelationshipCount)
	require.NotEmpty(t, doc.Warnings)
	assert.Contains(t, doc.Warnings[0], "graph upsert failed")

	count, err := rig.vectors.Count(context.Background(), "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "vector path is unaffected by graph failure")
}

func TestIngestExtractionFailureCompletesWithWarnings(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = func(system, user string) (string, error) {
		return "", memory.NewUnavailable(nil, "llm down")
	}

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	doc := result.Documents[0]
	assert.Equal(t, memory.StatusCompleted, doc.Status)
	assert.Equal(t, 0, doc.RelationshipCount)
	require.NotEmpty(t, doc.Warnings)
	assert.Contains(t, doc.Warnings[0], "relationship extraction failed")
}

func TestIngestMalformedExtractionIsNotAWarning(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply("not json at all")

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	doc := result.Documents[0]
	assert.Equal(t, memory.StatusCompleted, doc.Status)
	assert.Equal(t, 0, doc.RelationshipCount)
	assert.Empty(t, doc.Warnings, "malformed model output is discarded silently")
}

func TestIngestIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply(twoEdgeReply)
	ctx := context.Background()

	docs := []memory.Document{{ID: "doc1", Content: "A relates to B. B relates to C."}}
	opts := IngestOptions{ProcessRelationships: true}

	_, err := rig.engine.IngestDocuments(ctx, "proj", docs, opts)
	require.NoError(t, err)
	_, err = rig.engine.IngestDocuments(ctx, "proj", docs, opts)
	require.NoError(t, err)

	count, err := rig.vectors.Count(ctx, "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-ingest must not duplicate points")

	stats, err := rig.graph.Stats(ctx, "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Relationships, "re-ingest must not duplicate edges")
}

func TestReingestRemovesStalePoints(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	ctx := context.Background()

	long := ""
	for i := 0; i < 80; i++ {
		long += fmt.Sprintf("line %d has a fair amount of text in it to pad the chunk\n", i)
	}

	_, err := rig.engine.IngestDocuments(ctx, "proj", []memory.Document{{ID: "doc1", Content: long}}, IngestOptions{})
	require.NoError(t, err)
	before, err := rig.vectors.Count(ctx, "mem-proj")
	require.NoError(t, err)
	require.Greater(t, before, 1)

	_, err = rig.engine.IngestDocuments(ctx, "proj", []memory.Document{{ID: "doc1", Content: "short now"}}, IngestOptions{})
	require.NoError(t, err)
	after, err := rig.vectors.Count(ctx, "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 1, after, "stale ordinals beyond the new chunk count must be gone")
}

func TestConcurrentIngestsOfDisjointDocuments(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rig.engine.IngestDocuments(ctx, "proj", []memory.Document{
				{ID: fmt.Sprintf("doc-%d", i), Content: fmt.Sprintf("concurrent document %d", i)},
			}, IngestOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "ingest %d", i)
	}

	count, err := rig.vectors.Count(ctx, "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestAdmissionRejections(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	docs := []memory.Document{{ID: "doc1", Content: "text"}}

	_, err := rig.engine.IngestDocuments(ctx, "ghost", docs, IngestOptions{})
	assert.True(t, memory.IsNotFound(err))

	rig.states.set("proj", memory.StateStopped)
	_, err = rig.engine.IngestDocuments(ctx, "proj", docs, IngestOptions{})
	assert.True(t, memory.IsConflict(err))

	rig.states.set("proj", memory.StateStopping)
	_, err = rig.engine.IngestDocuments(ctx, "proj", docs, IngestOptions{})
	assert.True(t, memory.IsConflict(err), "the fence closes as soon as stopping begins")

	_, err = rig.engine.QueryContext(ctx, "proj", "query", QueryOptions{})
	assert.True(t, memory.IsConflict(err))
}

func TestIngestBatchValidation(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	ctx := context.Background()

	_, err := rig.engine.IngestDocuments(ctx, "proj", nil, IngestOptions{})
	assert.True(t, memory.IsValidation(err))

	_, err = rig.engine.IngestDocuments(ctx, "proj", []memory.Document{
		{ID: "", Content: "x"},
	}, IngestOptions{})
	assert.True(t, memory.IsValidation(err))

	_, err = rig.engine.IngestDocuments(ctx, "proj", []memory.Document{
		{ID: "dup", Content: "x"},
		{ID: "dup", Content: "y"},
	}, IngestOptions{})
	assert.True(t, memory.IsValidation(err))
}

func TestIngestEmptyContentFailsDocumentNotBatch(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")

	result, err := rig.engine.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "empty", Content: "   "},
		{ID: "ok", Content: "some real content"},
	}, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)
}

func TestQueryContextDegradesWhenGraphFails(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	rig.llm.ChatFn = extractionReply(twoEdgeReply)
	ctx := context.Background()

	_, err := rig.engine.IngestDocuments(ctx, "proj", []memory.Document{
		{ID: "doc1", Content: "A relates to B. B relates to C."},
	}, IngestOptions{ProcessRelationships: true})
	require.NoError(t, err)

	// Losing the graph project makes enrichment fail while vectors survive.
	require.NoError(t, rig.graph.DropProject(ctx, "mem-proj"))

	result, err := rig.engine.QueryContext(ctx, "proj", "A", QueryOptions{IncludeRelationships: true})
	require.NoError(t, err, "graph failure must not fail the query")
	assert.NotEmpty(t, result.Chunks)
	assert.True(t, result.GraphDegraded)
	assert.Empty(t, result.Relationships)
}

func TestQueryValidation(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")

	_, err := rig.engine.QueryContext(context.Background(), "proj", "   ", QueryOptions{})
	assert.True(t, memory.IsValidation(err))
}

func TestDrainWaitsForInflightWork(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")
	ctx := context.Background()

	release := make(chan struct{})
	rig.vectors.UpsertErrFn = func(call int, points []vectorstore.Point) error {
		<-release
		return nil
	}

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		_, _ = rig.engine.IngestDocuments(ctx, "proj", []memory.Document{
			{ID: "doc1", Content: "slow document"},
		}, IngestOptions{})
	}()

	// The ingest is parked inside the vector upsert; a bounded drain times
	// out while it is held.
	time.Sleep(20 * time.Millisecond)
	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := rig.engine.Drain(shortCtx, "proj")
	require.Error(t, err)
	assert.True(t, memory.IsTimeout(err))

	close(release)
	<-ingestDone
	require.NoError(t, rig.engine.Drain(ctx, "proj"))
}

func TestDrainNoInflightIsImmediate(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.engine.Drain(context.Background(), "proj"))
}

// fencedStates answers Running for the first state check on the target
// project and delegates afterwards, simulating a stop that lands between the
// admission check and in-flight registration.
type fencedStates struct {
	*fakeStates
	project string

	callMu sync.Mutex
	calls  int
}

func (f *fencedStates) ProjectState(projectID string) (memory.ProjectState, bool) {
	if projectID == f.project {
		f.callMu.Lock()
		f.calls++
		first := f.calls == 1
		f.callMu.Unlock()
		if first {
			return memory.StateRunning, true
		}
	}
	return f.fakeStates.ProjectState(projectID)
}

func TestIngestBacksOutWhenStopLandsDuringAdmission(t *testing.T) {
	rig := newTestRig(t)
	rig.startProject(t, "proj")

	states := &fencedStates{fakeStates: rig.states, project: "proj"}
	ck, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	eng := New(Config{
		Vectors: rig.vectors,
		Graph:   rig.graph,
		LLM:     rig.llm,
		Chunker: ck,
		States:  states,
		Logger:  zerolog.Nop(),
		Workers: 4,
	})

	// The fence closes right after the first admission check passed.
	rig.states.set("proj", memory.StateStopping)

	_, err = eng.IngestDocuments(context.Background(), "proj", []memory.Document{
		{ID: "doc1", Content: "late arrival"},
	}, IngestOptions{})
	require.Error(t, err)
	assert.True(t, memory.IsConflict(err), "registration after the fence must back out")

	// Nothing was written and nothing is left registered.
	count, err := rig.vectors.Count(context.Background(), "mem-proj")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, eng.Drain(context.Background(), "proj"))
}
