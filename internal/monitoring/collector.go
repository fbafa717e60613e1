package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Query metrics (within lookback window).
	QueriesTotal      int     `json:"queries_total"`
	QueriesCompleted  int     `json:"queries_completed"`
	QueriesFailed     int     `json:"queries_failed"`
	QueriesProcessing int     `json:"queries_processing"`
	QueryFailRate     float64 `json:"query_fail_rate"`
	AvgProcessingMS   float64 `json:"avg_processing_ms"`
	AvgCitations      float64 `json:"avg_citations"`

	// Response cache depth, live vs. past-expiry rows awaiting purge.
	CacheLiveEntries    int `json:"cache_live_entries"`
	CacheExpiredEntries int `json:"cache_expired_entries"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the query log and response cache.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.store.ListQueries(ctx, store.QueryFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list queries")
	}

	var totalProcessingMS int64
	var timedQueries int
	var totalCitations int

	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		snap.QueriesTotal++
		switch e.Status {
		case model.QueryStatusCompleted:
			snap.QueriesCompleted++
			totalCitations += e.CitationCount
		case model.QueryStatusFailed:
			snap.QueriesFailed++
		case model.QueryStatusProcessing:
			snap.QueriesProcessing++
		}
		if e.ProcessingTimeMS > 0 {
			totalProcessingMS += e.ProcessingTimeMS
			timedQueries++
		}
	}

	finished := snap.QueriesCompleted + snap.QueriesFailed
	if finished > 0 {
		snap.QueryFailRate = float64(snap.QueriesFailed) / float64(finished)
	}
	if timedQueries > 0 {
		snap.AvgProcessingMS = float64(totalProcessingMS) / float64(timedQueries)
	}
	if snap.QueriesCompleted > 0 {
		snap.AvgCitations = float64(totalCitations) / float64(snap.QueriesCompleted)
	}

	live, expired, err := c.store.CountCachedResponses(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count cached responses")
	}
	snap.CacheLiveEntries = live
	snap.CacheExpiredEntries = expired

	return snap, nil
}
