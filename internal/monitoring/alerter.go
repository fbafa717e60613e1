package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kevinvandever/secureask/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQueryFailureRate AlertType = "query_failure_rate"
	AlertSlowQueries      AlertType = "slow_queries"
	AlertCacheBacklog     AlertType = "cache_backlog"
)

// Minimum sample size before the failure-rate alert can fire.
const failureRateFloor = 5

// Expired cache rows tolerated before the backlog alert fires.
const cacheBacklogFloor = 100

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check query failure rate.
	finished := snap.QueriesCompleted + snap.QueriesFailed
	if finished >= failureRateFloor && snap.QueryFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQueryFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Query failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.QueryFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.QueriesFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.QueryFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.QueriesFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Check average processing latency.
	if a.cfg.SlowQueryThresholdMS > 0 && snap.AvgProcessingMS > float64(a.cfg.SlowQueryThresholdMS) {
		alerts = append(alerts, Alert{
			Type:     AlertSlowQueries,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Average query processing time %.0fms exceeds threshold %dms in last %dh",
				snap.AvgProcessingMS, a.cfg.SlowQueryThresholdMS, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_processing_ms": snap.AvgProcessingMS,
				"threshold_ms":      a.cfg.SlowQueryThresholdMS,
				"queries_total":     snap.QueriesTotal,
			},
			Timestamp: now,
		})
	}

	// Check expired-cache backlog.
	if snap.CacheExpiredEntries > cacheBacklogFloor && snap.CacheExpiredEntries > snap.CacheLiveEntries {
		alerts = append(alerts, Alert{
			Type:     AlertCacheBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d expired cache entries awaiting purge (vs %d live); run cache purge",
				snap.CacheExpiredEntries, snap.CacheLiveEntries,
			),
			Details: map[string]any{
				"expired": snap.CacheExpiredEntries,
				"live":    snap.CacheLiveEntries,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
