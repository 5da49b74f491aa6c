package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

const defaultCountTTL = 30 * time.Second

// Client talks to a Qdrant collection maintained by the external
// ingestion pipeline. This service only reads: similarity search plus
// an exact point count cached briefly and invalidated whenever the
// pipeline reports new papers.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	countMu      sync.Mutex
	countTTL     time.Duration
	cachedCount  int
	countFetched time.Time
	countValid   bool
}

func New(baseURL, collection string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		countTTL:   defaultCountTTL,
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	years domain.YearRange,
) ([]domain.EngineHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if clause := yearFilter(years); clause != nil {
		reqBody["filter"] = clause
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusError("search", resp)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.EngineHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.EngineHit{
			Chunk: chunkFromPayload(r.Payload),
			// Qdrant reports cosine similarity; the retriever contract
			// wants cosine distance in [0,2].
			Distance: 1 - r.Score,
		})
	}
	return out, nil
}

// Count returns the exact number of indexed chunks, served from a short
// cache so the per-query corpus clamp does not cost a round-trip.
func (c *Client) Count(ctx context.Context) (int, error) {
	c.countMu.Lock()
	if c.countValid && time.Since(c.countFetched) < c.countTTL {
		cached := c.cachedCount
		c.countMu.Unlock()
		return cached, nil
	}
	c.countMu.Unlock()

	count, err := c.fetchCount(ctx)
	if err != nil {
		return 0, err
	}

	c.countMu.Lock()
	c.cachedCount = count
	c.countFetched = time.Now()
	c.countValid = true
	c.countMu.Unlock()
	return count, nil
}

// InvalidateCount drops the cached point count. Wired to the ingestion
// pipeline's papers.indexed events.
func (c *Client) InvalidateCount() {
	c.countMu.Lock()
	c.countValid = false
	c.countMu.Unlock()
}

func (c *Client) fetchCount(ctx context.Context) (int, error) {
	body, err := json.Marshal(map[string]any{"exact": true})
	if err != nil {
		return 0, fmt.Errorf("marshal count body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create count request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant count request: %w", err)
	}
	defer resp.Body.Close()

	// A collection the pipeline has not created yet is an empty corpus,
	// not a failure.
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode >= 300 {
		return 0, statusError("count", resp)
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return countResp.Result.Count, nil
}

// yearFilter builds the native range clause; multiple bounds combine
// under "must" (logical AND). Chunks without a year payload are
// excluded by Qdrant whenever a bound is present.
func yearFilter(years domain.YearRange) map[string]any {
	if years.IsZero() {
		return nil
	}
	rangeClause := map[string]any{}
	if years.Min != 0 {
		rangeClause["gte"] = years.Min
	}
	if years.Max != 0 {
		rangeClause["lte"] = years.Max
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "year", "range": rangeClause},
		},
	}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ChunkID:      stringPayload(payload, "chunk_id"),
		DocumentID:   stringPayload(payload, "document_id"),
		Text:         stringPayload(payload, "text"),
		Title:        stringPayload(payload, "title"),
		Authors:      stringPayload(payload, "authors"),
		Year:         intPayload(payload, "year"),
		PageNumber:   intPayload(payload, "page_number"),
		Section:      domain.Section(stringPayload(payload, "section")),
		SectionTitle: stringPayload(payload, "section_title"),
	}
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
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

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}
