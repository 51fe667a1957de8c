package healthcheck

import (
	"context"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
)

// IncidentHandler is the incident side of alert transitions.
type IncidentHandler interface {
	OpenIncident(ctx context.Context, a *model.Alert) (*model.Incident, error)
	AutoRemediate(ctx context.Context, a *model.Alert, inc *model.Incident) error
	ResolveIncident(ctx context.Context, a *model.Alert, resolvedAt time.Time) error
	Reconcile(ctx context.Context, alertID string, now time.Time) (*model.Incident, error)
}

// KPISource computes the snapshot a cycle evaluates.
type KPISource interface {
	CalculateKPIs(ctx context.Context, windowMinutes int) (model.KPISnapshot, error)
}

// FeedSource lists the current feed health rows.
type FeedSource interface {
	ListFeedHealth(ctx context.Context) ([]model.FeedHealth, error)
}

// CycleResult is what one evaluation cycle saw and raised.
type CycleResult struct {
	Triggered []model.Alert      `json:"triggered"`
	KPIs      model.KPISnapshot  `json:"kpis"`
	Feeds     []model.FeedHealth `json:"feeds"`
}

// pendingResolution is a resolved alert whose incident could not be closed yet.
type pendingResolution struct {
	alert      *model.Alert
	resolvedAt time.Time
}
