package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func obs(at time.Time, typ, name string, v float64) model.Observation {
	return model.Observation{Timestamp: at, MetricType: typ, MetricName: name, Value: v}
}

func newTestAggregator(t *testing.T, rows ...model.Observation) (*Aggregator, *store.MemStore) {
	t.Helper()
	s := store.NewMemStore()
	require.NoError(t, s.InsertMetrics(context.Background(), rows))
	a := NewAggregator(s)
	a.now = func() time.Time { return t0 }
	return a, s
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{name: "empty", values: nil, p: 95, want: 0},
		{name: "single", values: []float64{7}, p: 99, want: 7},
		{name: "p50 of five", values: []float64{50, 10, 40, 20, 30}, p: 50, want: 30},
		{name: "p95 of five", values: []float64{10, 20, 30, 40, 50}, p: 95, want: 50},
		{name: "p99 of five", values: []float64{10, 20, 30, 40, 50}, p: 99, want: 50},
		{name: "p0 clamps to first", values: []float64{3, 1, 2}, p: 0, want: 1},
		{name: "p100 is max", values: []float64{3, 1, 2}, p: 100, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(tt.values, tt.p))
		})
	}
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_ = Percentile(in, 50)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestCalculateKPIs_RateLaw(t *testing.T) {
	var rows []model.Observation
	at := t0.Add(-time.Minute)
	for i := 0; i < 80; i++ {
		rows = append(rows, obs(at, "order", "fill", 1))
	}
	for i := 0; i < 15; i++ {
		rows = append(rows, obs(at, "order", "reject", 1))
	}
	for i := 0; i < 5; i++ {
		rows = append(rows, obs(at, "order", "cancel", 1))
	}
	a, _ := newTestAggregator(t, rows...)

	snap, err := a.CalculateKPIs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 100, snap.OrderCount)
	assert.Equal(t, 80.0, snap.FillRate)
	assert.Equal(t, 15.0, snap.RejectRate)
	assert.Equal(t, 5.0, snap.CancelRate)
}

func TestCalculateKPIs_LatencyPercentiles(t *testing.T) {
	at := t0.Add(-time.Minute)
	a, _ := newTestAggregator(t,
		obs(at, "latency", "latency", 50),
		obs(at, "latency", "latency", 10),
		obs(at, "latency", "latency", 40),
		obs(at, "latency", "latency", 20),
		obs(at, "latency", "latency", 30),
	)
	snap, err := a.CalculateKPIs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 30.0, snap.LatencyP50)
	assert.Equal(t, 50.0, snap.LatencyP95)
	assert.Equal(t, 50.0, snap.LatencyP99)
}

func TestCalculateKPIs_SelectsKPIMetricsOnly(t *testing.T) {
	at := t0.Add(-time.Minute)
	a, _ := newTestAggregator(t,
		obs(at, "latency", "latency", 20),
		obs(at, "latency", "gateway_rtt", 900),
		obs(at, "market_data", "quote", 1),
	)
	snap, err := a.CalculateKPIs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 20.0, snap.LatencyP95)
	assert.Equal(t, 0, snap.OrderCount, "raw count, not the floored denominator")
	assert.Equal(t, 0.0, snap.RejectRate)
}

func TestCalculateKPIs_EmptyWindow(t *testing.T) {
	a, _ := newTestAggregator(t)
	snap, err := a.CalculateKPIs(context.Background(), 60)
	require.NoError(t, err)
	assert.Equal(t, model.KPISnapshot{}, snap)
}

func TestCalculateKPIs_WindowExcludesOldAndBoundary(t *testing.T) {
	a, _ := newTestAggregator(t,
		obs(t0.Add(-10*time.Minute), "order", "fill", 1),
		obs(t0.Add(-5*time.Minute), "order", "fill", 1), // exactly on the boundary
		obs(t0.Add(-4*time.Minute), "order", "reject", 1),
	)
	snap, err := a.CalculateKPIs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.OrderCount)
	assert.Equal(t, 100.0, snap.RejectRate)
	assert.Equal(t, 0.0, snap.FillRate)
}

func TestCalculateKPIs_ExposureAndMessageRate(t *testing.T) {
	var rows []model.Observation
	for i := 0; i < 120; i++ {
		rows = append(rows, obs(t0.Add(-time.Duration(i+1)*time.Second), "market_data", "quote", 1))
	}
	rows = append(rows,
		obs(t0.Add(-3*time.Minute), "position", "position_exposure", 900_000),
		obs(t0.Add(-time.Minute), "position", "position_exposure", 1_200_000),
		obs(t0.Add(-2*time.Minute), "position", "position_exposure", 500_000),
	)
	a, _ := newTestAggregator(t, rows...)

	snap, err := a.CalculateKPIs(context.Background(), 1)
	require.NoError(t, err)
	// 59 quotes fall strictly inside the last minute plus the one at -60s is excluded
	assert.InDelta(t, 59.0/60.0, snap.MessageRate, 1e-9)
	assert.Equal(t, 0.0, snap.PositionExposure, "exposure samples are older than the window")

	snap, err = a.CalculateKPIs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1_200_000.0, snap.PositionExposure)
	assert.InDelta(t, 120.0/300.0, snap.MessageRate, 1e-9)
}

func TestCalculateKPIs_Deterministic(t *testing.T) {
	at := t0.Add(-time.Minute)
	a, _ := newTestAggregator(t,
		obs(at, "order", "fill", 1), obs(at, "order", "reject", 1), obs(at, "order", "new", 1),
		obs(at, "latency", "latency", 12.5), obs(at, "latency", "latency", 99),
		obs(at, "market_data", "trade", 1),
	)
	first, err := a.CalculateKPIs(context.Background(), 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.CalculateKPIs(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculateKPIs_InvalidWindow(t *testing.T) {
	a, _ := newTestAggregator(t)
	_, err := a.CalculateKPIs(context.Background(), 0)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
	_, err = a.GetRecentMetrics(context.Background(), "latency", -1)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
}

type failingQueryStore struct{ store.MetricStore }

func (failingQueryStore) QueryMetrics(context.Context, model.MetricQuery) ([]model.Observation, error) {
	return nil, &model.TransientStorageError{Op: "query metrics", Err: errors.New("connection refused")}
}

func TestCalculateKPIs_StorageErrorIsReturned(t *testing.T) {
	a := NewAggregator(failingQueryStore{})
	snap, err := a.CalculateKPIs(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, model.IsStorageError(err))
	assert.Equal(t, model.KPISnapshot{}, snap)
}

func TestGetRecentMetrics_NewestFirst(t *testing.T) {
	a, _ := newTestAggregator(t,
		obs(t0.Add(-3*time.Minute), "latency", "latency", 1),
		obs(t0.Add(-2*time.Minute), "latency", "latency", 2),
		obs(t0.Add(-2*time.Minute), "order", "fill", 1),
		obs(t0.Add(-time.Minute), "latency", "latency", 3),
	)
	got, err := a.GetRecentMetrics(context.Background(), "latency", 60)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{3, 2, 1}, []float64{got[0].Value, got[1].Value, got[2].Value})
}
