package graph

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/model"
)

// NewDemoClient returns a Client with canned graph data for demo mode and
// offline development. Nothing is persisted.
func NewDemoClient() Client {
	return demoClient{}
}

type demoClient struct{}

func (demoClient) SearchNodes(_ context.Context, query string, _ int) ([]model.GraphNode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("graph: query must not be empty")
	}
	return []model.GraphNode{
		{ID: "company_AAPL", Type: "Company", Name: "Apple Inc.", Relevance: 0.95},
		{ID: "risk_climate_001", Type: "Risk", Name: "Climate Change Risk", Relevance: 0.87},
	}, nil
}

func (demoClient) IngestRecords(_ context.Context, source, _ string, records []map[string]any) (*IngestResult, error) {
	if source == "" {
		return nil, eris.New("graph: source must not be empty")
	}
	if len(records) == 0 {
		return &IngestResult{}, nil
	}
	return demoIngestResult(uuid.New().String()), nil
}

func (demoClient) IngestDocument(_ context.Context, docID, content, _ string) (*IngestResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, eris.New("graph: document content must not be empty")
	}
	if docID == "" {
		docID = uuid.New().String()
	}
	return demoIngestResult(docID), nil
}

func (demoClient) Health(_ context.Context) error {
	return nil
}

func demoIngestResult(docID string) *IngestResult {
	return &IngestResult{
		DocumentID:       docID,
		TriplesExtracted: 42,
		NodesCreated:     15,
		EdgesCreated:     27,
	}
}
