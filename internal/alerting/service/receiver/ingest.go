package receiver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMarketDataFeed = "primary_feed"
	DefaultOrderGateway   = "order_gateway"
)

// Recorder is the buffered observation sink.
type Recorder interface {
	Record(metricType, metricName string, value float64, metadata any)
}

// Ingestor turns venue events into observations and feed heartbeats.
type Ingestor struct {
	rec   Recorder
	feeds store.FeedHealthStore
	seen  *seenSet
	now   func() time.Time
}

func NewIngestor(rec Recorder, feeds store.FeedHealthStore) *Ingestor {
	return &Ingestor{rec: rec, feeds: feeds, seen: newSeenSet(0), now: time.Now}
}

type marketDataMeta struct {
	Symbol    string   `json:"symbol"`
	Feed      string   `json:"feed"`
	LatencyMs *float64 `json:"latency_ms,omitempty"`
}

type orderMeta struct {
	OrderID      string   `json:"order_id"`
	Symbol       string   `json:"symbol"`
	Side         string   `json:"side"`
	LatencyMs    *float64 `json:"latency_ms,omitempty"`
	RejectReason string   `json:"reject_reason,omitempty"`
}

// MarketData records one market-data message and refreshes the feed's heartbeat.
func (i *Ingestor) MarketData(ctx context.Context, ev *model.MarketDataEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := validLatency(ev.LatencyMs); err != nil {
		return err
	}
	feed := ev.Feed
	if feed == "" {
		feed = DefaultMarketDataFeed
	}
	i.rec.Record(model.MetricTypeMarketData, string(ev.Type), 1, marketDataMeta{Symbol: ev.Symbol, Feed: feed, LatencyMs: ev.LatencyMs})
	if ev.LatencyMs != nil {
		i.rec.Record(model.MetricTypeLatency, model.MetricNameLatency, *ev.LatencyMs, nil)
	}

	hb := model.FeedHeartbeat{FeedName: feed, FeedType: model.FeedMarketData, At: i.now(), Status: model.FeedHealthy}
	if ev.LatencyMs != nil {
		hb.LatencyMs = *ev.LatencyMs
	}
	if err := i.feeds.UpsertFeedHealth(ctx, hb); err != nil {
		return fmt.Errorf("feed heartbeat %s: %w", feed, err)
	}
	return nil
}

// Order records one order lifecycle event. A replayed (order id, type) pair is
// ignored and reported as false.
func (i *Ingestor) Order(ctx context.Context, ev *model.OrderEvent) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	if err := validLatency(ev.LatencyMs); err != nil {
		return false, err
	}
	key := BuildIdempotencyKey(ev)
	if !i.seen.MarkSeen(key) {
		log.Debug().Str("idempotency_key", key).Msg("order event already recorded")
		return false, nil
	}

	i.rec.Record(model.MetricTypeOrder, string(ev.Type), 1, orderMeta{
		OrderID:      ev.OrderID,
		Symbol:       ev.Symbol,
		Side:         string(ev.Side),
		LatencyMs:    ev.LatencyMs,
		RejectReason: ev.RejectReason,
	})
	if ev.LatencyMs != nil {
		i.rec.Record(model.MetricTypeLatency, model.MetricNameLatency, *ev.LatencyMs, nil)
	}

	gw := ev.Gateway
	if gw == "" {
		gw = DefaultOrderGateway
	}
	hb := model.FeedHeartbeat{
		FeedName: gw,
		FeedType: model.FeedOrderGateway,
		At:       i.now(),
		Status:   model.FeedHealthy,
		Error:    ev.Type == model.OrderReject,
	}
	if ev.LatencyMs != nil {
		hb.LatencyMs = *ev.LatencyMs
	}
	if err := i.feeds.UpsertFeedHealth(ctx, hb); err != nil {
		return true, fmt.Errorf("feed heartbeat %s: %w", gw, err)
	}
	return true, nil
}

// Position records the current total position exposure.
func (i *Ingestor) Position(exposure float64) error {
	if math.IsNaN(exposure) || math.IsInf(exposure, 0) {
		return &model.InvalidEventError{Field: "exposure", Value: fmt.Sprint(exposure)}
	}
	i.rec.Record(model.MetricTypePosition, model.MetricNamePositionExposure, exposure, nil)
	return nil
}

func validLatency(v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return &model.InvalidEventError{Field: "latency_ms", Value: fmt.Sprint(*v)}
	}
	return nil
}
