package metrics

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
)

// Aggregator derives KPI snapshots from the persisted observations of a trailing window.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	store store.MetricStore
	now   func() time.Time
}

func NewAggregator(s store.MetricStore) *Aggregator {
	return &Aggregator{store: s, now: time.Now}
}

var kpiTypes = []string{model.MetricTypeOrder, model.MetricTypeMarketData}
var kpiNames = []string{model.MetricNameLatency, model.MetricNamePositionExposure}

// CalculateKPIs computes the snapshot over observations newer than now minus windowMinutes.
// A storage failure is returned as is; no partial snapshot is produced.
func (a *Aggregator) CalculateKPIs(ctx context.Context, windowMinutes int) (model.KPISnapshot, error) {
	if windowMinutes <= 0 {
		return model.KPISnapshot{}, model.ErrInvalidWindow
	}
	since := a.now().Add(-time.Duration(windowMinutes) * time.Minute)
	obs, err := a.store.QueryMetrics(ctx, model.MetricQuery{Since: since, Types: kpiTypes, Names: kpiNames})
	if err != nil {
		return model.KPISnapshot{}, fmt.Errorf("calculate kpis: %w", err)
	}
	return Summarize(obs, windowMinutes), nil
}

// Summarize folds observations, ordered by timestamp then insertion, into a snapshot.
func Summarize(obs []model.Observation, windowMinutes int) model.KPISnapshot {
	var (
		orders, fills, cancels, rejects, messages int
		latencies                                 []float64
		exposure                                  float64
	)
	for _, o := range obs {
		switch o.MetricType {
		case model.MetricTypeOrder:
			orders++
			switch o.MetricName {
			case model.MetricNameFill:
				fills++
			case model.MetricNameCancel:
				cancels++
			case model.MetricNameReject:
				rejects++
			}
		case model.MetricTypeMarketData:
			messages++
		}
		switch o.MetricName {
		case model.MetricNameLatency:
			latencies = append(latencies, o.Value)
		case model.MetricNamePositionExposure:
			// later entries win
			exposure = o.Value
		}
	}
	slices.Sort(latencies)

	snap := model.KPISnapshot{
		FillRate:         rate(fills, orders),
		CancelRate:       rate(cancels, orders),
		RejectRate:       rate(rejects, orders),
		LatencyP50:       percentileSorted(latencies, 50),
		LatencyP95:       percentileSorted(latencies, 95),
		LatencyP99:       percentileSorted(latencies, 99),
		PositionExposure: exposure,
		OrderCount:       orders,
	}
	if windowMinutes > 0 {
		snap.MessageRate = float64(messages) / float64(windowMinutes*60)
	}
	return snap
}

// GetRecentMetrics returns the observations named metricName within the window, newest first.
func (a *Aggregator) GetRecentMetrics(ctx context.Context, metricName string, windowMinutes int) ([]model.Observation, error) {
	if windowMinutes <= 0 {
		return nil, model.ErrInvalidWindow
	}
	since := a.now().Add(-time.Duration(windowMinutes) * time.Minute)
	obs, err := a.store.QueryMetrics(ctx, model.MetricQuery{Since: since, Name: metricName})
	if err != nil {
		return nil, fmt.Errorf("recent metrics %s: %w", metricName, err)
	}
	slices.Reverse(obs)
	return obs, nil
}
