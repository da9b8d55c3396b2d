package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QdrantIndex implements Index against Qdrant's HTTP API.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewQdrantIndex creates a Qdrant-backed index over one collection.
func NewQdrantIndex(url, apiKey, collection string) (*QdrantIndex, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 20 * time.Second},
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not already exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dims int) error {
	_, err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil)
	if err == nil {
		return nil
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": "Cosine",
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection, req); err != nil {
		return &WriteError{Op: "ensure collection", Err: err}
	}
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, 0, len(points))
	for _, p := range points {
		payload = append(payload, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Meta,
		})
	}
	req := map[string]any{"points": payload}
	if _, err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", req); err != nil {
		return &WriteError{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteDocument removes every point belonging to a document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, documentID string) error {
	filter := map[string]any{
		"must": []map[string]any{
			qdrantMatch("document_id", documentID),
		},
	}
	if err := q.deleteByFilter(ctx, filter); err != nil {
		return &WriteError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteStaleRevs removes a document's points from superseded revisions.
func (q *QdrantIndex) DeleteStaleRevs(ctx context.Context, documentID, keepRev string) error {
	filter := map[string]any{
		"must": []map[string]any{
			qdrantMatch("document_id", documentID),
		},
		"must_not": []map[string]any{
			qdrantMatch("rev", keepRev),
		},
	}
	if err := q.deleteByFilter(ctx, filter); err != nil {
		return &WriteError{Op: "delete stale revs", Err: err}
	}
	return nil
}

func (q *QdrantIndex) deleteByFilter(ctx context.Context, filter map[string]any) error {
	req := map[string]any{"filter": filter}
	_, err := q.doRequest(ctx, http.MethodPost, "/collections/"+q.collection+"/points/delete?wait=true", req)
	return err
}

// Search runs a filtered nearest-neighbor query and maps payloads back
// into chunk metadata.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		req["filter"] = f
	}
	data, err := q.doRequest(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	var parsed struct {
		Result []struct {
			Score   float32         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	hits := make([]Hit, 0, len(parsed.Result))
	for _, item := range parsed.Result {
		var m Metadata
		if err := json.Unmarshal(item.Payload, &m); err != nil {
			continue
		}
		hits = append(hits, Hit{Score: item.Score, Meta: m})
	}
	return hits, nil
}

// Close is a no-op; the HTTP client holds no connection state worth
// releasing explicitly.
func (q *QdrantIndex) Close() error {
	return nil
}

func (q *QdrantIndex) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// qdrantFilter translates the metadata pre-filter into Qdrant's filter
// grammar. Returns nil when the filter is empty.
func qdrantFilter(f Filter) map[string]any {
	var must []map[string]any
	if len(f.Companies) > 0 {
		values := make([]any, 0, len(f.Companies))
		for _, c := range f.Companies {
			values = append(values, c)
		}
		must = append(must, map[string]any{
			"key":   "company",
			"match": map[string]any{"any": values},
		})
	}
	if f.DateFrom > 0 || f.DateTo > 0 {
		rng := map[string]any{}
		if f.DateFrom > 0 {
			rng["gte"] = f.DateFrom
		}
		if f.DateTo > 0 {
			rng["lte"] = f.DateTo
		}
		must = append(must, map[string]any{
			"key":   "date_int",
			"range": rng,
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func qdrantMatch(key string, value any) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}
