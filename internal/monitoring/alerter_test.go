package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinvandever/secureask/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	snap := &MetricsSnapshot{
		QueriesTotal:     100,
		QueriesCompleted: 95,
		QueriesFailed:    5,
		QueryFailRate:    0.05,
		AvgProcessingMS:  1800,
		CacheLiveEntries: 40,
		LookbackHours:    24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_QueryFailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	snap := &MetricsSnapshot{
		QueriesTotal:     20,
		QueriesCompleted: 12,
		QueriesFailed:    8,
		QueryFailRate:    0.4, // 8/20 = 40%
		AvgProcessingMS:  1500,
		LookbackHours:    24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertQueryFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_SlowQueries(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	snap := &MetricsSnapshot{
		QueriesTotal:     10,
		QueriesCompleted: 10,
		AvgProcessingMS:  15000,
		LookbackHours:    24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSlowQueries, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "15000ms")
}

func TestAlerter_Evaluate_CacheBacklog(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	snap := &MetricsSnapshot{
		CacheLiveEntries:    10,
		CacheExpiredEntries: 150,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCacheBacklog, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "150 expired")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	snap := &MetricsSnapshot{
		QueriesTotal:        20,
		QueriesCompleted:    10,
		QueriesFailed:       10,
		QueryFailRate:       0.5,
		AvgProcessingMS:     20000,
		CacheLiveEntries:    5,
		CacheExpiredEntries: 200,
		LookbackHours:       24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertQueryFailureRate])
	assert.True(t, types[AlertSlowQueries])
	assert.True(t, types[AlertCacheBacklog])
}

func TestAlerter_Evaluate_MinimumQueriesRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.10,
		SlowQueryThresholdMS: 10000,
	})

	// Only 3 finished queries — below the 5-query minimum for the rate alert.
	snap := &MetricsSnapshot{
		QueriesTotal:     3,
		QueriesCompleted: 1,
		QueriesFailed:    2,
		QueryFailRate:    0.666,
		LookbackHours:    24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		assert.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertQueryFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertSlowQueries, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertQueryFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertQueryFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}

func TestAlerter_Evaluate_ZeroSlowThreshold(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		SlowQueryThresholdMS: 0, // disabled
	})

	snap := &MetricsSnapshot{
		AvgProcessingMS: 99999.0,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}
