package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/qiniu/venueops/internal/alerting/observability"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Engine        *Engine
	KPIs          KPISource
	Feeds         FeedSource
	Metrics       *observability.Metrics
	Interval      time.Duration
	WindowMinutes int
}

func (d *Deps) defaults() {
	if d.Interval <= 0 {
		d.Interval = 2 * time.Second
	}
	if d.WindowMinutes <= 0 {
		d.WindowMinutes = 5
	}
}

// StartScheduler runs one evaluation cycle per interval until ctx is done.
func StartScheduler(ctx context.Context, deps Deps) {
	deps.defaults()
	t := time.NewTicker(deps.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := RunOnce(ctx, deps); err != nil {
				log.Error().Err(err).Msg("healthcheck runOnce failed")
			}
		}
	}
}

// RunOnce computes the KPI snapshot, reads feed health and evaluates the rules.
// A failed read skips evaluation entirely; no rule sees a partial snapshot.
func RunOnce(ctx context.Context, deps Deps) (*CycleResult, error) {
	deps.defaults()
	snap, err := deps.KPIs.CalculateKPIs(ctx, deps.WindowMinutes)
	if err != nil {
		return nil, fmt.Errorf("evaluation skipped: %w", err)
	}
	feeds, err := deps.Feeds.ListFeedHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluation skipped: %w", err)
	}
	deps.Metrics.Snapshot(snap)

	triggered, err := deps.Engine.CheckAlerts(ctx, snap, feeds)
	res := &CycleResult{Triggered: triggered, KPIs: snap, Feeds: feeds}
	if len(triggered) > 0 {
		log.Info().Int("triggered", len(triggered)).Int("order_count", snap.OrderCount).Msg("evaluation cycle raised alerts")
	}
	return res, err
}
