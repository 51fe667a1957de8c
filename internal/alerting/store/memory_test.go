package store

import (
	"context"
	"testing"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_QueryMetricsOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertMetrics(ctx, []model.Observation{
		{Timestamp: base.Add(2 * time.Second), MetricType: "order", MetricName: "fill", Value: 1},
		{Timestamp: base.Add(1 * time.Second), MetricType: "latency", MetricName: "latency", Value: 10},
	}))
	require.NoError(t, s.InsertMetrics(ctx, []model.Observation{
		{Timestamp: base.Add(1 * time.Second), MetricType: "latency", MetricName: "latency", Value: 20},
		{Timestamp: base, MetricType: "order", MetricName: "reject", Value: 1},
	}))

	all, err := s.QueryMetrics(ctx, model.MetricQuery{Since: base.Add(-time.Minute)})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "reject", all[0].MetricName)
	assert.Equal(t, 10.0, all[1].Value)
	assert.Equal(t, 20.0, all[2].Value)
	assert.Equal(t, "fill", all[3].MetricName)

	// strictly after Since
	recent, err := s.QueryMetrics(ctx, model.MetricQuery{Since: base})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	lat, err := s.QueryMetrics(ctx, model.MetricQuery{Since: base.Add(-time.Minute), Name: "latency"})
	require.NoError(t, err)
	assert.Len(t, lat, 2)

	orders, err := s.QueryMetrics(ctx, model.MetricQuery{Since: base.Add(-time.Minute), Types: []string{"order"}})
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestMemStore_AlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a := &model.Alert{AlertID: "high_latency", Name: "High Latency", Severity: model.SeverityWarning,
		ConditionType: model.ConditionThreshold, Status: model.AlertActive, TriggeredAt: now, CreatedAt: now}
	require.NoError(t, s.UpsertAlert(ctx, a))

	ok, err := s.AcknowledgeAlert(ctx, "high_latency")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.AcknowledgeAlert(ctx, "high_latency")
	require.NoError(t, err)
	assert.False(t, ok, "already acknowledged")

	live, err := s.ListAlerts(ctx, model.AlertActive, model.AlertAcknowledged)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, model.AlertAcknowledged, live[0].Status)

	require.NoError(t, s.ResolveAlert(ctx, "high_latency", now.Add(time.Minute)))
	live, err = s.ListAlerts(ctx, model.AlertActive)
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ResolvedAt)
	assert.Equal(t, now.Add(time.Minute), *all[0].ResolvedAt)
}

func TestMemStore_IncidentResolution(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-1", AlertID: "stale_feed",
		Status: model.IncidentOpen, RemediationStatus: model.RemediationPending, StartedAt: now}))
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-2", AlertID: "risk_breach",
		Status: model.IncidentOpen, StartedAt: now.Add(time.Second)}))

	ok, err := s.UpdateRemediation(ctx, "INC-1", "failover", model.RemediationInProgress)
	require.NoError(t, err)
	assert.True(t, ok)

	open, err := s.ListOpenIncidents(ctx, "stale_feed")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "failover", open[0].RemediationAction)

	n, err := s.ResolveOpenIncidents(ctx, "stale_feed", now.Add(30*time.Second), 0, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// resolved incidents are frozen
	ok, err = s.UpdateRemediation(ctx, "INC-1", "late", model.RemediationCompleted)
	require.NoError(t, err)
	assert.False(t, ok)

	recent, err := s.ListIncidentsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "INC-2", recent[0].IncidentID)
	assert.Equal(t, model.IncidentResolved, recent[1].Status)
	assert.Equal(t, 30.0, recent[1].MTTRSeconds)
	assert.Equal(t, "failover", recent[1].RemediationAction)
}

func TestMemStore_FeedHealthKeepsLatestHeartbeat(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertFeedHealth(ctx, model.FeedHeartbeat{FeedName: "primary_feed", FeedType: model.FeedMarketData, At: now, Status: model.FeedHealthy}))
	require.NoError(t, s.UpsertFeedHealth(ctx, model.FeedHeartbeat{FeedName: "primary_feed", FeedType: model.FeedMarketData, At: now.Add(-time.Second), Status: model.FeedHealthy, Error: true}))

	feeds, err := s.ListFeedHealth(ctx)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, now, feeds[0].LastHeartbeat)
	assert.EqualValues(t, 2, feeds[0].MessageCount)
	assert.EqualValues(t, 1, feeds[0].ErrorCount)
}

func TestMemStore_Runbooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertRunbook(ctx, &model.Runbook{RunbookID: "rb-stale-feed", AlertType: "stale_feed", Title: "Stale feed"}))

	rb, err := s.GetRunbook(ctx, "stale_feed")
	require.NoError(t, err)
	require.NotNil(t, rb)
	assert.Equal(t, "rb-stale-feed", rb.RunbookID)

	rb, err = s.GetRunbook(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, rb)
}
