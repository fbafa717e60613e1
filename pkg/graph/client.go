// Package graph provides a client for the knowledge-graph sidecar service.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/resilience"
)

const defaultMaxHops = 2

// Client defines the graph-service operations used by the query engine.
type Client interface {
	// SearchNodes returns graph nodes related to query, traversing at most
	// maxHops relationships. No matches is an empty slice, not an error.
	SearchNodes(ctx context.Context, query string, maxHops int) ([]model.GraphNode, error)

	// IngestRecords feeds normalized source records into the graph for
	// entity and relationship extraction.
	IngestRecords(ctx context.Context, source, ticker string, records []map[string]any) (*IngestResult, error)

	// IngestDocument ingests one raw document into the graph.
	IngestDocument(ctx context.Context, docID, content, source string) (*IngestResult, error)

	// Health probes the service. A nil error means it is reachable and ready.
	Health(ctx context.Context) error
}

// IngestResult reports what one ingest call added to the graph.
type IngestResult struct {
	DocumentID       string `json:"documentId"`
	TriplesExtracted int    `json:"triplesExtracted"`
	NodesCreated     int    `json:"nodesCreated"`
	EdgesCreated     int    `json:"edgesCreated"`
}

type searchRequest struct {
	Query   string `json:"query"`
	MaxHops int    `json:"maxHops"`
}

type searchResponse struct {
	Nodes []model.GraphNode `json:"nodes"`
}

type recordsRequest struct {
	Source  string           `json:"source"`
	Ticker  string           `json:"ticker"`
	Records []map[string]any `json:"records"`
}

type documentRequest struct {
	DocID   string `json:"docId"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Option configures the graph client.
type Option func(*httpClient)

// WithAPIKey sets the X-API-Key header sent on every request.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a graph client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchNodes(ctx context.Context, query string, maxHops int) ([]model.GraphNode, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("graph: query must not be empty")
	}
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	body, status, err := c.do(ctx, http.MethodPost, "/api/v1/search", searchRequest{Query: query, MaxHops: maxHops})
	if err != nil {
		return nil, eris.Wrap(err, "graph: search")
	}
	if status != http.StatusOK {
		return nil, statusError("search", status, body)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "graph: unmarshal search response")
	}
	nodes := resp.Nodes
	if nodes == nil {
		nodes = []model.GraphNode{}
	}
	return nodes, nil
}

func (c *httpClient) IngestRecords(ctx context.Context, source, ticker string, records []map[string]any) (*IngestResult, error) {
	if source == "" {
		return nil, eris.New("graph: source must not be empty")
	}
	if len(records) == 0 {
		return &IngestResult{}, nil
	}

	req := recordsRequest{Source: source, Ticker: ticker, Records: records}
	body, status, err := c.do(ctx, http.MethodPost, "/api/v1/ingest/records", req)
	if err != nil {
		return nil, eris.Wrap(err, "graph: ingest records")
	}
	if status != http.StatusOK {
		return nil, statusError("ingest records", status, body)
	}
	return unmarshalIngestResult(body)
}

func (c *httpClient) IngestDocument(ctx context.Context, docID, content, source string) (*IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, eris.New("graph: document content must not be empty")
	}

	req := documentRequest{DocID: docID, Content: content, Source: source}
	body, status, err := c.do(ctx, http.MethodPost, "/api/v1/ingest/document", req)
	if err != nil {
		return nil, eris.Wrap(err, "graph: ingest document")
	}
	if status != http.StatusOK {
		return nil, statusError("ingest document", status, body)
	}
	return unmarshalIngestResult(body)
}

func (c *httpClient) Health(ctx context.Context) error {
	body, status, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return eris.Wrap(err, "graph: health")
	}
	if status != http.StatusOK {
		return statusError("health", status, body)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, eris.Wrap(err, "create request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read response body")
	}
	return data, resp.StatusCode, nil
}

func unmarshalIngestResult(body []byte) (*IngestResult, error) {
	var result IngestResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "graph: unmarshal ingest result")
	}
	return &result, nil
}

// statusError marks retryable upstream statuses as transient so callers can
// decide whether to retry.
func statusError(op string, status int, body []byte) error {
	err := eris.Errorf("graph: %s status %d: %s", op, status, strings.TrimSpace(string(body)))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
