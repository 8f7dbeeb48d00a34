package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/resilience"
)

// Client manages per-document collections in a Qdrant instance over its REST
// API. Collection names are chosen by the caller; the client never assumes a
// single shared collection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.executor.Execute(ctx, "qdrant_has_collection", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil)
		if err != nil {
			return fmt.Errorf("create collection info request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant collection info request: %w", err)
		}
		defer resp.Body.Close()
		drainBody(resp)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			exists = false
			return nil
		case resp.StatusCode >= 300:
			return fmt.Errorf("qdrant collection info status: %s", resp.Status)
		default:
			exists = true
			return nil
		}
	}, classifyQdrantError)
	return exists, err
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	return c.executor.Execute(ctx, "qdrant_drop_collection", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil)
		if err != nil {
			return fmt.Errorf("create drop collection request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant drop collection request: %w", err)
		}
		defer resp.Body.Close()
		drainBody(resp)

		// Dropping a collection that is already gone is not a failure.
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("qdrant drop collection status: %s", resp.Status)
		}
		return nil
	}, classifyQdrantError)
}

// UpsertCollection creates the collection sized to the given vectors and
// loads all passages in one wait=true call, so a successful return means the
// points are searchable.
func (c *Client) UpsertCollection(ctx context.Context, name string, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) == 0 {
		return fmt.Errorf("no passages to index")
	}
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages/vectors mismatch: %d/%d", len(passages), len(vectors))
	}

	if err := c.createCollection(ctx, name, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(passages))
	for i, passage := range passages {
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"page": passage.Page,
				"text": passage.Text,
			},
		})
	}

	return c.executor.Execute(ctx, "qdrant_upsert_points", func(ctx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, name)
		resp, err := c.putJSON(ctx, url, map[string]any{"points": points})
		if err != nil {
			return fmt.Errorf("qdrant upsert request: %w", err)
		}
		defer resp.Body.Close()
		drainBody(resp)

		if resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant upsert status: %s", resp.Status)
		}
		return nil
	}, classifyQdrantError)
}

func (c *Client) Search(ctx context.Context, name string, queryVector []float32, limit int) ([]domain.ScoredPassage, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var out []domain.ScoredPassage
	err = c.executor.Execute(ctx, "qdrant_search", func(ctx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, name)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			drainBody(resp)
			return fmt.Errorf("qdrant search status: %s", resp.Status)
		}

		var searchResp struct {
			Result []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}

		out = make([]domain.ScoredPassage, 0, len(searchResp.Result))
		for _, r := range searchResp.Result {
			out = append(out, domain.ScoredPassage{
				Page:  intPayload(r.Payload, "page"),
				Text:  stringPayload(r.Payload, "text"),
				Score: r.Score,
			})
		}
		return nil
	}, classifyQdrantError)
	return out, err
}

func (c *Client) createCollection(ctx context.Context, name string, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	return c.executor.Execute(ctx, "qdrant_create_collection", func(ctx context.Context) error {
		url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
		resp, err := c.putJSON(ctx, url, reqBody)
		if err != nil {
			return fmt.Errorf("qdrant create collection request: %w", err)
		}
		defer resp.Body.Close()

		// 409 means the collection already exists; the caller dropped it when
		// it wanted a rebuild, so an existing collection is acceptable here.
		if resp.StatusCode == http.StatusConflict {
			drainBody(resp)
			return nil
		}
		if resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			if msg := strings.TrimSpace(string(payload)); msg != "" {
				return fmt.Errorf("qdrant create collection status: %s: %s", resp.Status, msg)
			}
			return fmt.Errorf("qdrant create collection status: %s", resp.Status)
		}
		drainBody(resp)
		return nil
	}, classifyQdrantError)
}

func (c *Client) putJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
