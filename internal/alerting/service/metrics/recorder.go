package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/observability"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBufferSize    = 1000
	DefaultFlushInterval = 5 * time.Second
)

type RecorderOptions struct {
	BufferSize    int
	FlushInterval time.Duration
	// MaxPending bounds the observations kept while storage is failing; the oldest
	// are dropped beyond it. Defaults to 100 x BufferSize.
	MaxPending int
	Metrics    *observability.Metrics
}

// Recorder buffers observations in memory and writes them to the metric store in
// batches. Record never performs storage I/O.
type Recorder struct {
	store      store.MetricStore
	capacity   int
	interval   time.Duration
	maxPending int
	metrics    *observability.Metrics
	now        func() time.Time

	mu      sync.Mutex
	pending []model.Observation

	// flushMu serializes flushes so a requeued batch stays ahead of newer ones.
	flushMu sync.Mutex
	flushCh chan struct{}
}

func NewRecorder(s store.MetricStore, opts RecorderOptions) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxPending < opts.BufferSize {
		opts.MaxPending = 100 * opts.BufferSize
	}
	return &Recorder{
		store:      s,
		capacity:   opts.BufferSize,
		interval:   opts.FlushInterval,
		maxPending: opts.MaxPending,
		metrics:    opts.Metrics,
		now:        time.Now,
		pending:    make([]model.Observation, 0, opts.BufferSize),
		flushCh:    make(chan struct{}, 1),
	}
}

// Record appends one observation stamped with the current time. metadata is
// marshalled to JSON; a value that cannot be marshalled is dropped with a warning.
func (r *Recorder) Record(metricType, metricName string, value float64, metadata any) {
	o := model.Observation{
		Timestamp:  r.now(),
		MetricType: metricType,
		MetricName: metricName,
		Value:      value,
	}
	if metadata != nil {
		if bs, err := json.Marshal(metadata); err == nil {
			o.Metadata = bs
		} else {
			log.Warn().Err(err).Str("metric_name", metricName).Msg("dropping unencodable metric metadata")
		}
	}
	r.append(o)
}

func (r *Recorder) append(o model.Observation) {
	r.mu.Lock()
	r.pending = append(r.pending, o)
	dropped := r.trimLocked()
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.Recorded(1)
	r.metrics.Pending(n)
	if dropped > 0 {
		r.metrics.Dropped(dropped)
		log.Error().Int("dropped", dropped).Int("max_pending", r.maxPending).Msg("metrics recorder overflow, oldest observations dropped")
	}
	if n >= r.capacity {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// trimLocked drops the oldest observations beyond maxPending. Caller holds r.mu.
func (r *Recorder) trimLocked() int {
	over := len(r.pending) - r.maxPending
	if over <= 0 {
		return 0
	}
	r.pending = append(r.pending[:0:0], r.pending[over:]...)
	return over
}

// Pending reports how many observations are not yet confirmed written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush swaps the buffer for an empty one and writes the swapped batch. On error
// the batch is put back ahead of anything recorded meanwhile.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = make([]model.Observation, 0, r.capacity)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	err := r.store.InsertMetrics(ctx, batch)
	r.metrics.Flushed(len(batch), err)
	if err == nil {
		log.Debug().Int("batch", len(batch)).Msg("metrics flushed")
		r.metrics.Pending(r.Pending())
		return nil
	}

	r.mu.Lock()
	r.pending = append(batch, r.pending...)
	dropped := r.trimLocked()
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.Pending(n)
	if dropped > 0 {
		r.metrics.Dropped(dropped)
		log.Error().Int("dropped", dropped).Msg("metrics recorder overflow while requeueing failed batch")
	}
	log.Warn().Err(err).Int("batch", len(batch)).Int("pending", n).Msg("metrics flush failed, batch requeued")
	return err
}

// Start runs the flush loop until ctx is done, then makes one last best-effort flush.
func (r *Recorder) Start(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Flush(fctx); err != nil {
				log.Error().Err(err).Int("pending", r.Pending()).Msg("final metrics flush failed")
			}
			cancel()
			return
		case <-t.C:
			_ = r.Flush(ctx)
		case <-r.flushCh:
			_ = r.Flush(ctx)
		}
	}
}
