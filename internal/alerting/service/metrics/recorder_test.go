package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails InsertMetrics while failing is set.
type flakyStore struct {
	*store.MemStore
	mu      sync.Mutex
	failing bool
	calls   int
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyStore) InsertMetrics(ctx context.Context, batch []model.Observation) error {
	f.mu.Lock()
	f.calls++
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return &model.TransientStorageError{Op: "insert metrics", Err: errors.New("db unavailable")}
	}
	return f.MemStore.InsertMetrics(ctx, batch)
}

func TestRecorder_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	r := NewRecorder(s, RecorderOptions{BufferSize: 10})
	r.now = func() time.Time { return t0.Add(-time.Second) }

	r.Record("latency", "latency", 42.5, map[string]any{"symbol": "BTC/USD"})
	assert.Equal(t, 1, r.Pending())
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, 0, r.Pending())

	a := NewAggregator(s)
	a.now = func() time.Time { return t0 }
	got, err := a.GetRecentMetrics(ctx, "latency", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "latency", got[0].MetricType)
	assert.Equal(t, "latency", got[0].MetricName)
	assert.Equal(t, 42.5, got[0].Value)
	assert.JSONEq(t, `{"symbol":"BTC/USD"}`, string(got[0].Metadata))
}

func TestRecorder_FlushFailureRequeuesAheadOfNewer(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{MemStore: store.NewMemStore(), failing: true}
	r := NewRecorder(fs, RecorderOptions{BufferSize: 100})
	tick := t0.Add(-time.Minute)
	r.now = func() time.Time { tick = tick.Add(time.Millisecond); return tick }

	for i := 1; i <= 3; i++ {
		r.Record("latency", "latency", float64(i), nil)
	}
	err := r.Flush(ctx)
	require.Error(t, err)
	assert.True(t, model.IsStorageError(err))
	assert.Equal(t, 3, r.Pending(), "failed batch is kept")

	r.Record("latency", "latency", 4, nil)
	fs.setFailing(false)
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, 0, r.Pending())

	rows, err := fs.QueryMetrics(ctx, model.MetricQuery{Since: t0.Add(-time.Hour), Name: "latency"})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, o := range rows {
		assert.Equal(t, float64(i+1), o.Value)
	}
}

func TestRecorder_OverflowDropsOldest(t *testing.T) {
	fs := &flakyStore{MemStore: store.NewMemStore(), failing: true}
	r := NewRecorder(fs, RecorderOptions{BufferSize: 2, MaxPending: 3})
	for i := 1; i <= 5; i++ {
		r.Record("order", "fill", float64(i), nil)
	}
	assert.Equal(t, 3, r.Pending())

	fs.setFailing(false)
	require.NoError(t, r.Flush(context.Background()))
	rows, err := fs.QueryMetrics(context.Background(), model.MetricQuery{Since: time.Time{}})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 3.0, rows[0].Value)
	assert.Equal(t, 5.0, rows[2].Value)
}

func TestRecorder_CapacityTriggersFlushLoop(t *testing.T) {
	s := store.NewMemStore()
	r := NewRecorder(s, RecorderOptions{BufferSize: 5, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		r.Record("market_data", "quote", 1, nil)
	}
	require.Eventually(t, func() bool { return r.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)

	r.Record("market_data", "quote", 1, nil)
	cancel()
	<-done
	assert.Equal(t, 0, r.Pending(), "final flush on shutdown")

	rows, err := s.QueryMetrics(context.Background(), model.MetricQuery{Since: time.Time{}})
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestRecorder_TimerTriggersFlushLoop(t *testing.T) {
	s := store.NewMemStore()
	r := NewRecorder(s, RecorderOptions{BufferSize: 1000, FlushInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	for i := 1; i <= 3; i++ {
		r.Record("latency", "latency", float64(i), nil)
	}
	require.Eventually(t, func() bool {
		if r.Pending() != 0 {
			return false
		}
		rows, err := s.QueryMetrics(context.Background(), model.MetricQuery{Since: time.Time{}})
		return err == nil && len(rows) == 3
	}, 2*time.Second, 10*time.Millisecond, "flushed by the interval ticker before shutdown")
}

func TestRecorder_ConcurrentRecordPreservesPerNameOrder(t *testing.T) {
	s := store.NewMemStore()
	r := NewRecorder(s, RecorderOptions{BufferSize: 16})
	var seq sync.Mutex
	tick := t0.Add(-time.Hour)
	r.now = func() time.Time {
		seq.Lock()
		defer seq.Unlock()
		tick = tick.Add(time.Microsecond)
		return tick
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("writer_%d", w)
			for i := 0; i < perWriter; i++ {
				r.Record("order", name, float64(i), nil)
			}
		}(w)
	}
	wg.Wait()
	cancel()
	<-done

	for w := 0; w < writers; w++ {
		rows, err := s.QueryMetrics(context.Background(), model.MetricQuery{Since: time.Time{}, Name: fmt.Sprintf("writer_%d", w)})
		require.NoError(t, err)
		require.Len(t, rows, perWriter)
		for i, o := range rows {
			assert.Equal(t, float64(i), o.Value)
		}
	}
}

func TestRecorder_UnencodableMetadataIsDropped(t *testing.T) {
	r := NewRecorder(store.NewMemStore(), RecorderOptions{})
	r.Record("order", "fill", 1, map[string]any{"bad": make(chan int)})
	require.Equal(t, 1, r.Pending())
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.pending[0].Metadata)
}
