// Package store persists cached source responses and the query log.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/model"
)

// ErrQueryNotFound is returned when a query id has no log entry.
var ErrQueryNotFound = eris.New("store: query not found")

// QueryFilter narrows ListQueries results.
type QueryFilter struct {
	Status model.QueryStatus
	UserID string
	Limit  int
	Offset int
}

// Store is the persistence interface for the query engine.
type Store interface {
	// GetCachedResponse returns the freshest unexpired payload for the key,
	// or (nil, nil) when there is no live entry.
	GetCachedResponse(ctx context.Context, key string) ([]byte, error)
	// SetCachedResponse stores the payload under the key with the given TTL.
	SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// DeleteExpiredResponses removes entries past their expiry and reports
	// how many were deleted.
	DeleteExpiredResponses(ctx context.Context) (int, error)
	// CountCachedResponses reports live and expired entry counts.
	CountCachedResponses(ctx context.Context) (live int, expired int, err error)

	// CreateQuery records a new query log entry. The caller supplies the id.
	CreateQuery(ctx context.Context, entry *model.QueryLogEntry) error
	// CompleteQuery finalizes a log entry with its terminal status.
	CompleteQuery(ctx context.Context, id string, status model.QueryStatus, citationCount int, processingTimeMS int64) error
	// GetQuery returns a log entry by id, or ErrQueryNotFound.
	GetQuery(ctx context.Context, id string) (*model.QueryLogEntry, error)
	// ListQueries returns log entries newest first.
	ListQueries(ctx context.Context, filter QueryFilter) ([]model.QueryLogEntry, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

func marshalSources(sources []model.SourceType) ([]byte, error) {
	if sources == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(sources)
}

func unmarshalSources(data []byte, dst *[]model.SourceType) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
