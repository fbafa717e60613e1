package model

import "time"

// QueryStatus represents the lifecycle state of a query. Transitions are
// monotonic: pending, processing, then completed or failed.
type QueryStatus string

const (
	QueryStatusPending    QueryStatus = "pending"
	QueryStatusProcessing QueryStatus = "processing"
	QueryStatusCompleted  QueryStatus = "completed"
	QueryStatusFailed     QueryStatus = "failed"
)

// Query is a submitted question plus its routing parameters, created at
// submission and immutable thereafter.
type Query struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	MaxHops   int          `json:"max_hops"`
	Sources   []SourceType `json:"sources"`
	UserID    string       `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
}

// ProcessingContext is per-query scratch state owned by the orchestrator call
// handling the query. It lives in the in-flight registry until processing
// ends, on any exit path.
type ProcessingContext struct {
	Query     Query
	StartedAt time.Time
}

// SourceResponse is the normalized envelope produced by one source fetch.
// A failed fetch yields Success=false and an empty record list; the envelope
// itself is never an error.
type SourceResponse struct {
	Source         SourceType       `json:"source"`
	Success        bool             `json:"success"`
	Records        []map[string]any `json:"records"`
	Error          string           `json:"error,omitempty"`
	ResponseTimeMS int64            `json:"response_time_ms"`
	Cached         bool             `json:"cached"`
}

// Citation links one evidence record into the synthesized answer.
type Citation struct {
	NodeID     string     `json:"node_id"`
	Source     SourceType `json:"source"`
	URL        string     `json:"url"`
	Snippet    string     `json:"snippet"`
	Confidence float64    `json:"confidence"`
}

// QueryResult is the synthesized outcome of a completed query.
type QueryResult struct {
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations"`
	GraphPath        []string   `json:"graph_path"`
	ProcessingTimeMS int64      `json:"processing_time_ms"`
}

// QueryResponse is the caller-facing view of a query and its result.
type QueryResponse struct {
	QueryID     string       `json:"query_id"`
	Question    string       `json:"question"`
	Status      QueryStatus  `json:"status"`
	Result      *QueryResult `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// QueryLogEntry is the audit row persisted per query. Answer text is not
// stored; synthesized answers live only in the response cache.
type QueryLogEntry struct {
	ID               string       `json:"id"`
	Question         string       `json:"question"`
	UserID           string       `json:"user_id"`
	Status           QueryStatus  `json:"status"`
	Sources          []SourceType `json:"sources"`
	CitationCount    int          `json:"citation_count"`
	ProcessingTimeMS int64        `json:"processing_time_ms"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// GraphNode is one record returned by the graph node-lookup collaborator.
type GraphNode struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Name      string  `json:"name"`
	Relevance float64 `json:"relevance"`
}
