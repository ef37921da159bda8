package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const qdrantTimeout = 30 * time.Second

// QdrantIndex talks to a Qdrant instance over its REST API. The collection
// is created lazily on first upsert, once the embedding dimension is known.
// Cosine distance is assumed.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	embedder   Embedder

	mu    sync.Mutex // guards ready across concurrent requests
	ready bool
}

func NewQdrantIndex(url, apiKey, collection string, embedder Embedder) *QdrantIndex {
	return &QdrantIndex{
		url:        url,
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: qdrantTimeout},
		embedder:   embedder,
	}
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant answers 200 when the collection already exists with the same
	// schema, so this is safe to repeat.
	if err := q.putJSON(ctx, fmt.Sprintf("%s/collections/%s", q.url, q.collection), body); err != nil {
		return storeErr("create collection", err)
	}
	q.ready = true
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	points := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := q.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return 0, storeErr(fmt.Sprintf("embed chunk %s", chunk.ID), err)
		}
		if err := q.ensureCollection(ctx, len(vector)); err != nil {
			return 0, err
		}
		payload := map[string]any{"text": chunk.Text}
		for k, v := range chunkMetadata(chunk) {
			payload[k] = v
		}
		points = append(points, map[string]any{
			"id":      chunk.ID,
			"vector":  vector,
			"payload": payload,
		})
	}

	body := map[string]any{"points": points}
	if err := q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body); err != nil {
		return 0, storeErr("upsert points", err)
	}
	return len(points), nil
}

func (q *QdrantIndex) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 5
	}
	vector, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, storeErr("embed query", err)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection)
	status, err := q.postJSON(ctx, url, req, &resp)
	if status == http.StatusNotFound {
		// Nothing indexed yet.
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("search", err)
	}

	chunks := make([]Chunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		meta := make(map[string]string, len(r.Payload))
		text := ""
		for k, v := range r.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if k == "text" {
				text = s
				continue
			}
			meta[k] = s
		}
		chunks = append(chunks, chunkFromMetadata(fmt.Sprintf("%v", r.ID), text, r.Score, meta))
	}
	return chunks, nil
}

func (q *QdrantIndex) ClearAll(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", q.url, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return storeErr("clear", err)
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return storeErr("clear", err)
	}
	defer resp.Body.Close()
	// A missing collection is already clear.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return storeErr("clear", fmt.Errorf("status %s", resp.Status))
	}
	q.mu.Lock()
	q.ready = false
	q.mu.Unlock()
	return nil
}

func (q *QdrantIndex) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *QdrantIndex) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("PUT %s: status %s", url, resp.Status)
	}
	return nil
}

func (q *QdrantIndex) postJSON(ctx context.Context, url string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("POST %s: status %s", url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
