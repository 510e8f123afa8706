package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

const scrollPageSize = 256

// QdrantConfig configures the Qdrant REST adapter.
type QdrantConfig struct {
	URL     string // e.g. http://localhost:6333
	APIKey  string
	Timeout time.Duration
}

// Qdrant implements Store against the Qdrant REST API.
type Qdrant struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewQdrant creates a Qdrant adapter.
func NewQdrant(cfg QdrantConfig, logger zerolog.Logger) *Qdrant {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Qdrant{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "qdrant").Logger(),
	}
}

func (q *Qdrant) IsHealthy(ctx context.Context) error {
	return q.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (q *Qdrant) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	err := q.do(ctx, http.MethodGet, "/collections/"+collection, nil, nil)
	if err == nil {
		return nil
	}
	if !memory.IsNotFound(err) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+collection, body, nil); err != nil {
		return err
	}
	q.logger.Info().
		Str("collection", collection).
		Int("dimension", dimension).
		Msg("Created collection")
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	wire := make([]map[string]any, len(points))
	for i, p := range points {
		wire[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": encodePayload(p),
		}
	}
	return q.do(ctx, http.MethodPut,
		"/collections/"+collection+"/points?wait=true",
		map[string]any{"points": wire}, nil)
}

func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter, minScore float64) ([]ScoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if minScore > 0 {
		body["score_threshold"] = minScore
	}
	if f := encodeFilter(filter); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	hits := make([]ScoredPoint, len(resp.Result))
	for i, r := range resp.Result {
		p := decodePayload(r.Payload)
		p.ID = r.ID
		hits[i] = ScoredPoint{Point: p, Score: r.Score}
	}
	return hits, nil
}

func (q *Qdrant) DeleteByDocumentID(ctx context.Context, collection, documentID string) error {
	body := map[string]any{
		"filter": encodeFilter(Filter{"document_id": documentID}),
	}
	return q.do(ctx, http.MethodPost,
		"/collections/"+collection+"/points/delete?wait=true", body, nil)
}

func (q *Qdrant) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost,
		"/collections/"+collection+"/points/count",
		map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (q *Qdrant) ScrollAll(ctx context.Context, collection string) ([]Point, error) {
	var points []Point
	var offset any

	for {
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp); err != nil {
			return nil, err
		}

		for _, r := range resp.Result.Points {
			p := decodePayload(r.Payload)
			p.ID = r.ID
			p.Vector = r.Vector
			points = append(points, p)
		}

		if resp.Result.NextPageOffset == nil {
			return points, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (q *Qdrant) DropCollection(ctx context.Context, collection string) error {
	err := q.do(ctx, http.MethodDelete, "/collections/"+collection, nil, nil)
	if memory.IsNotFound(err) {
		return nil
	}
	return err
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return memory.NewUnavailable(err, "qdrant unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return memory.NewNotFound("qdrant: %s %s: %s", method, path, string(data))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return memory.NewUnavailable(nil, "qdrant error (status %d): %s", resp.StatusCode, string(data))
		default:
			return memory.NewValidation("qdrant rejected request (status %d): %s", resp.StatusCode, string(data))
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func encodePayload(p Point) map[string]any {
	payload := map[string]any{
		"document_id": p.DocumentID,
		"ordinal":     p.Ordinal,
		"text":        p.Text,
	}
	for k, v := range p.Payload {
		payload[k] = v
	}
	return payload
}

func decodePayload(payload map[string]any) Point {
	p := Point{Payload: make(map[string]any)}
	for k, v := range payload {
		switch k {
		case "document_id":
			p.DocumentID, _ = v.(string)
		case "ordinal":
			if f, ok := v.(float64); ok {
				p.Ordinal = int(f)
			}
		case "text":
			p.Text, _ = v.(string)
		default:
			p.Payload[k] = v
		}
	}
	return p
}

func encodeFilter(filter Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}
