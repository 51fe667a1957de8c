package store

import (
	"context"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
)

// MetricStore is the append-only observation table.
type MetricStore interface {
	InsertMetrics(ctx context.Context, batch []model.Observation) error
	// QueryMetrics returns matching observations ordered by timestamp, then insertion order.
	QueryMetrics(ctx context.Context, q model.MetricQuery) ([]model.Observation, error)
}

// AlertStore persists alert history. alert_id is unique: a re-trigger overwrites the row.
type AlertStore interface {
	UpsertAlert(ctx context.Context, a *model.Alert) error
	ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error
	// AcknowledgeAlert flips an active alert to acknowledged. It reports false when
	// no active row exists.
	AcknowledgeAlert(ctx context.Context, alertID string) (bool, error)
	// ListAlerts returns alerts in the given statuses ordered by triggered_at desc.
	ListAlerts(ctx context.Context, statuses ...model.AlertStatus) ([]model.Alert, error)
}

// IncidentStore persists incidents.
type IncidentStore interface {
	InsertIncident(ctx context.Context, inc *model.Incident) error
	// UpdateRemediation changes the remediation fields of a non-resolved incident and
	// reports whether a row was updated.
	UpdateRemediation(ctx context.Context, incidentID, action string, status model.RemediationStatus) (bool, error)
	// ResolveOpenIncidents resolves every non-resolved incident of alertID and returns
	// how many rows changed.
	ResolveOpenIncidents(ctx context.Context, alertID string, resolvedAt time.Time, mttd, mttr float64) (int64, error)
	ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time, mttd, mttr float64) (bool, error)
	// ListOpenIncidents returns non-resolved incidents of alertID, newest first.
	ListOpenIncidents(ctx context.Context, alertID string) ([]model.Incident, error)
	// ListIncidentsSince returns incidents started after since, newest first.
	ListIncidentsSince(ctx context.Context, since time.Time) ([]model.Incident, error)
}

type FeedHealthStore interface {
	UpsertFeedHealth(ctx context.Context, hb model.FeedHeartbeat) error
	ListFeedHealth(ctx context.Context) ([]model.FeedHealth, error)
}

type RunbookStore interface {
	UpsertRunbook(ctx context.Context, rb *model.Runbook) error
	// GetRunbook returns nil, nil when no runbook covers alertType.
	GetRunbook(ctx context.Context, alertType string) (*model.Runbook, error)
	ListRunbooks(ctx context.Context) ([]model.Runbook, error)
}

// Store is the full persistence contract of the monitor.
type Store interface {
	MetricStore
	AlertStore
	IncidentStore
	FeedHealthStore
	RunbookStore
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &model.TransientStorageError{Op: op, Err: err}
}
