package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache_NilClientIsNoop(t *testing.T) {
	c := NewRedisCache(nil)
	_, ok := c.(NoopCache)
	assert.True(t, ok)
	assert.NoError(t, c.WriteAlert(context.Background(), &model.Alert{AlertID: "x"}))
	assert.Nil(t, NewRedisClient("", "", 0))
}

func TestRedisCache_AlertAndIncidentIndexes(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}
	require.NoError(t, rdb.FlushDB(ctx).Err())

	c := NewRedisCache(rdb)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("alert moves from active to resolved", func(t *testing.T) {
		a := &model.Alert{AlertID: "stale_feed", Name: "Stale Market Data", Severity: model.SeverityCritical,
			Status: model.AlertActive, TriggeredAt: now, CreatedAt: now}
		require.NoError(t, c.WriteAlert(ctx, a))

		ok, err := rdb.SIsMember(ctx, alertIndexActive, "stale_feed").Result()
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, c.ResolveAlert(ctx, "stale_feed", now.Add(time.Minute)))
		ok, err = rdb.SIsMember(ctx, alertIndexActive, "stale_feed").Result()
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = rdb.SIsMember(ctx, alertIndexResolved, "stale_feed").Result()
		require.NoError(t, err)
		assert.True(t, ok)

		raw, err := rdb.Get(ctx, alertKeyPrefix+"stale_feed").Result()
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &got))
		assert.Equal(t, "resolved", got["status"])
	})

	t.Run("incident moves from open to closed", func(t *testing.T) {
		inc := &model.Incident{IncidentID: "INC-1", AlertID: "stale_feed", Status: model.IncidentOpen, StartedAt: now}
		require.NoError(t, c.WriteIncident(ctx, inc))
		require.NoError(t, c.ResolveIncident(ctx, "INC-1", now.Add(30*time.Second), 30))

		open, err := rdb.SMembers(ctx, incidentIndexOpen).Result()
		require.NoError(t, err)
		assert.NotContains(t, open, "INC-1")
		closed, err := rdb.SMembers(ctx, incidentIndexClosed).Result()
		require.NoError(t, err)
		assert.Contains(t, closed, "INC-1")
	})
}
