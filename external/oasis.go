// OasisDB HTTP API client.
//
// The harness treats the database as an opaque collaborator: every call
// either succeeds or fails with a status code and message. Response
// bodies are only inspected for the few fields the harness reports on
// (health status, search result ids, document counts).
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultTimeout for OasisDB API calls.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error bodies in messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// APIError represents a non-success response from the OasisDB server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oasisdb: HTTP %d: %s", e.StatusCode, e.Message)
}

// Document is one vector record for upsert.
type Document struct {
	ID         string         `json:"id"`
	Vector     []float32      `json:"vector"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Dimension  int            `json:"dimension,omitempty"`
}

// CollectionInfo is the subset of collection metadata the harness reads.
type CollectionInfo struct {
	Name      string
	Dimension int
	Raw       string // full response body for report excerpts
}

// SearchResult holds the ids returned by a vector search.
type SearchResult struct {
	IDs []string
}

// Client talks to one OasisDB server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// NewClientWithHTTP creates a Client with a caller-supplied http.Client,
// useful for tests and connection pooling.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// request sends one API call and returns the response body. Non-2xx
// responses become *APIError with the (truncated) body as message.
func (c *Client) request(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := string(respBody)
		if len(msg) > maxErrorBodyLen {
			msg = msg[:maxErrorBodyLen] + "..."
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// HealthCheck pings the root endpoint. Returns an error unless the
// server answers {"status":"ok"}.
func (c *Client) HealthCheck(ctx context.Context) error {
	body, err := c.request(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if gjson.GetBytes(body, "status").String() != "ok" {
		return fmt.Errorf("unexpected health response: %s", body)
	}
	return nil
}

// CreateCollection creates a new collection.
func (c *Client) CreateCollection(ctx context.Context, name string, dimension int, indexType string, parameters map[string]string) error {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "name", name)
	payload, _ = sjson.SetBytes(payload, "dimension", dimension)
	payload, _ = sjson.SetBytes(payload, "index_type", indexType)
	if parameters == nil {
		parameters = map[string]string{}
	}
	payload, _ = sjson.SetBytes(payload, "parameters", parameters)

	_, err := c.request(ctx, http.MethodPost, "/v1/collections", payload)
	return err
}

// GetCollection retrieves collection metadata.
func (c *Client) GetCollection(ctx context.Context, name string) (CollectionInfo, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/collections/"+name, nil)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{
		Name:      gjson.GetBytes(body, "name").String(),
		Dimension: int(gjson.GetBytes(body, "dimension").Int()),
		Raw:       string(body),
	}, nil
}

// DeleteCollection deletes a collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodDelete, "/v1/collections/"+name, nil)
	return err
}

// BatchUpsertDocuments inserts or updates documents in one call.
func (c *Client) BatchUpsertDocuments(ctx context.Context, collection string, docs []Document) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	payload, _ := sjson.SetRawBytes([]byte(`{}`), "documents", raw)

	_, err = c.request(ctx, http.MethodPost,
		fmt.Sprintf("/v1/collections/%s/documents/batchupsert", collection), payload)
	return err
}

// SearchVectors performs a nearest-neighbor search.
func (c *Client) SearchVectors(ctx context.Context, collection string, vector []float32, limit int) (SearchResult, error) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal vector: %w", err)
	}
	payload, _ := sjson.SetRawBytes([]byte(`{}`), "vector", raw)
	payload, _ = sjson.SetBytes(payload, "limit", limit)

	body, err := c.request(ctx, http.MethodPost,
		fmt.Sprintf("/v1/collections/%s/vectors/search", collection), payload)
	if err != nil {
		return SearchResult{}, err
	}

	var result SearchResult
	for _, id := range gjson.GetBytes(body, "ids").Array() {
		result.IDs = append(result.IDs, id.String())
	}
	return result, nil
}

// CountDocuments returns the number of documents in a collection.
func (c *Client) CountDocuments(ctx context.Context, collection string) (int, error) {
	body, err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/v1/collections/%s/documents/count", collection), nil)
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(body, "count").Int()), nil
}
