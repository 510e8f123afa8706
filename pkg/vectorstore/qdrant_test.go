package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/proj":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/proj":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.Write([]byte(`{"result": true}`))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	require.NoError(t, q.EnsureCollection(context.Background(), "proj", 1536))

	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(1536), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestQdrantEnsureCollectionSkipsWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"result": {"status": "green"}}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	require.NoError(t, q.EnsureCollection(context.Background(), "proj", 1536))
}

func TestQdrantUpsertSendsPointsWithPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/proj/points", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		require.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"result": {"status": "acknowledged"}}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL, APIKey: "secret"}, zerolog.Nop())
	err := q.Upsert(context.Background(), "proj", []Point{{
		ID:         memory.ChunkID("doc1", 0),
		Vector:     []float32{0.1, 0.2},
		DocumentID: "doc1",
		Ordinal:    0,
		Text:       "chunk text",
		Payload:    map[string]any{"author": "ada"},
	}})
	require.NoError(t, err)

	points := body["points"].([]any)
	require.Len(t, points, 1)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "doc1", payload["document_id"])
	assert.Equal(t, "chunk text", payload["text"])
	assert.Equal(t, "ada", payload["author"])
}

func TestQdrantSearchDecodesHits(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/proj/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"result": [
			{"id": "p1", "score": 0.92, "payload": {"document_id": "doc1", "ordinal": 0, "text": "hello", "author": "ada"}},
			{"id": "p2", "score": 0.55, "payload": {"document_id": "doc2", "ordinal": 3, "text": "world"}}
		]}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	hits, err := q.Search(context.Background(), "proj", []float32{1, 0}, 5, Filter{"author": "ada"}, 0.3)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, 0.92, hits[0].Score)
	assert.Equal(t, "doc1", hits[0].DocumentID)
	assert.Equal(t, "hello", hits[0].Text)
	assert.Equal(t, "ada", hits[0].Payload["author"])
	assert.Equal(t, 3, hits[1].Ordinal)

	assert.Equal(t, 0.3, body["score_threshold"])
	filter := body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, "author", must[0].(map[string]any)["key"])
}

func TestQdrantDeleteByDocumentIDUsesFilter(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/proj/points/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"result": {"status": "acknowledged"}}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	require.NoError(t, q.DeleteByDocumentID(context.Background(), "proj", "doc1"))

	must := body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "document_id", cond["key"])
	assert.Equal(t, "doc1", cond["match"].(map[string]any)["value"])
}

func TestQdrantScrollAllPaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/proj/points/scroll", r.URL.Path)
		calls++
		if calls == 1 {
			w.Write([]byte(`{"result": {
				"points": [{"id": "p1", "vector": [0.1], "payload": {"document_id": "doc1", "ordinal": 0, "text": "a"}}],
				"next_page_offset": "p1"
			}}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "p1", body["offset"])
		w.Write([]byte(`{"result": {
			"points": [{"id": "p2", "vector": [0.2], "payload": {"document_id": "doc1", "ordinal": 1, "text": "b"}}],
			"next_page_offset": null
		}}`))
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	points, err := q.ScrollAll(context.Background(), "proj")
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "p1", points[0].ID)
	assert.Equal(t, []float32{0.2}, points[1].Vector)
}

func TestQdrantErrorClassification(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Count(ctx, "proj")
	assert.True(t, memory.IsUnavailable(err))

	status = http.StatusBadRequest
	_, err = q.Count(ctx, "proj")
	assert.True(t, memory.IsValidation(err))

	status = http.StatusNotFound
	_, err = q.Count(ctx, "proj")
	assert.True(t, memory.IsNotFound(err))

	srv.Close()
	_, err = q.Count(ctx, "proj")
	assert.True(t, memory.IsUnavailable(err), "connection refused maps to unavailable")
}

func TestQdrantDropCollectionMissingIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	q := NewQdrant(QdrantConfig{URL: srv.URL}, zerolog.Nop())
	require.NoError(t, q.DropCollection(context.Background(), "proj"))
}
