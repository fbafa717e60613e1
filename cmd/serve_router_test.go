//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinvandever/secureask/internal/engine"
	"github.com/kevinvandever/secureask/internal/fetch"
	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/resilience"
	"github.com/kevinvandever/secureask/internal/store"
	"github.com/kevinvandever/secureask/pkg/edgar"
	"github.com/kevinvandever/secureask/pkg/graph"
	"github.com/kevinvandever/secureask/pkg/reddit"
	"github.com/kevinvandever/secureask/pkg/tiktok"
)

// newTestRouter builds a router over demo-client fetchers and a throwaway
// sqlite store. graphClient may be nil to exercise the unconfigured paths.
func newTestRouter(t *testing.T, graphClient graph.Client, ratePerMin int) http.Handler {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	cache := fetch.NewCache(st)
	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{})
	eng := engine.New(engine.Config{
		Store: st,
		Cache: cache,
		Graph: graphClient,
		Fetchers: []fetch.SourceFetcher{
			fetch.NewSECFetcher(edgar.NewDemoClient(), cache, time.Minute, breakers.Get("edgar")),
			fetch.NewRedditFetcher(reddit.NewDemoClient(), cache, time.Minute, breakers.Get("reddit")),
			fetch.NewTikTokFetcher(tiktok.NewDemoClient(), cache, time.Minute, breakers.Get("tiktok")),
		},
	})

	return buildRouter(eng, breakers, []string{"*"}, ratePerMin)
}

func TestBuildRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["activeQueries"])
	assert.Contains(t, body, "breakers")
}

func TestBuildRouter_Query_DemoClients(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"question":"What are Apple's climate risks?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.QueryID)
	assert.Equal(t, model.QueryStatusCompleted, resp.Status)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.Citations)
	assert.NotEmpty(t, resp.Result.Answer)
	assert.Equal(t, model.SourceSEC, resp.Result.Citations[0].Source)
}

func TestBuildRouter_Query_SourceFilter(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"question":"What are Apple's climate risks?","sources":["reddit"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	require.NotEmpty(t, resp.Result.Citations)
	for _, c := range resp.Result.Citations {
		assert.Equal(t, model.SourceReddit, c.Source)
	}
}

func TestBuildRouter_Query_AnswerSuppressed(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"question":"What are Apple's climate risks?","includeAnswer":false}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp model.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.Citations)
	assert.Contains(t, resp.Result.Answer, "I wasn't able to find sufficient information")
}

func TestBuildRouter_Query_MissingQuestion(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "question is required")
}

func TestBuildRouter_Query_InvalidJSON(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestBuildRouter_Query_UnknownSource(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"question":"anything","sources":["bloomberg"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown source")
}

func TestBuildRouter_QueryStatus_Roundtrip(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"question":"What are Apple's climate risks?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var created model.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/query/"+created.QueryID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got model.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, created.QueryID, got.QueryID)
	assert.Equal(t, model.QueryStatusCompleted, got.Status)
	// Status lookups return metadata only; the synthesized result is not
	// persisted in the query log.
	assert.Nil(t, got.Result)
}

func TestBuildRouter_QueryStatus_NotFound(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query/does-not-exist", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "query not found")
}

func TestBuildRouter_GraphSearch_NotConfigured(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"query":"Apple climate"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/graph/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "graph service not configured")
}

func TestBuildRouter_GraphSearch_Demo(t *testing.T) {
	router := newTestRouter(t, graph.NewDemoClient(), 0)

	payload := []byte(`{"query":"Apple climate","maxHops":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/graph/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Nodes []model.GraphNode `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Nodes)
}

func TestBuildRouter_GraphSearch_EmptyQuery(t *testing.T) {
	router := newTestRouter(t, graph.NewDemoClient(), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/graph/search", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "query is required")
}

func TestBuildRouter_Ingest_NotConfigured(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	payload := []byte(`{"docId":"doc-1","content":"Apple supply chain report","source":"manual"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildRouter_Ingest_Demo(t *testing.T) {
	router := newTestRouter(t, graph.NewDemoClient(), 0)

	payload := []byte(`{"docId":"doc-1","content":"Apple supply chain report","source":"manual"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result graph.IngestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Positive(t, result.TriplesExtracted)
}

func TestBuildRouter_Ingest_MissingContent(t *testing.T) {
	router := newTestRouter(t, graph.NewDemoClient(), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader([]byte(`{"docId":"doc-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "content is required")
}

func TestBuildRouter_RateLimit(t *testing.T) {
	router := newTestRouter(t, nil, 3)

	// Burst equals the per-minute budget; the fourth request in quick
	// succession from the same address is rejected.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "rate limit exceeded")
}

func TestBuildRouter_RateLimit_Disabled(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestBuildRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
