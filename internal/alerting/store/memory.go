package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
)

// MemStore keeps every table in process memory. It backs the monitor when no
// database is reachable and serves as the test double for the service packages.
type MemStore struct {
	mu        sync.RWMutex
	metrics   []model.Observation
	alerts    map[string]model.Alert
	incidents []model.Incident
	feeds     map[string]model.FeedHealth
	runbooks  map[string]model.Runbook
}

func NewMemStore() *MemStore {
	return &MemStore{
		alerts:   map[string]model.Alert{},
		feeds:    map[string]model.FeedHealth{},
		runbooks: map[string]model.Runbook{},
	}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) InsertMetrics(ctx context.Context, batch []model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, batch...)
	return nil
}

func (m *MemStore) QueryMetrics(ctx context.Context, q model.MetricQuery) ([]model.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Observation, 0, 64)
	for _, o := range m.metrics {
		if q.Match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemStore) UpsertAlert(ctx context.Context, a *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.AlertID] = *a
	return nil
}

func (m *MemStore) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil
	}
	a.Status = model.AlertResolved
	a.ResolvedAt = &resolvedAt
	m.alerts[alertID] = a
	return nil
}

func (m *MemStore) AcknowledgeAlert(ctx context.Context, alertID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok || a.Status != model.AlertActive {
		return false, nil
	}
	a.Status = model.AlertAcknowledged
	m.alerts[alertID] = a
	return true, nil
}

func (m *MemStore) ListAlerts(ctx context.Context, statuses ...model.AlertStatus) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if len(statuses) == 0 || slices.Contains(statuses, a.Status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].AlertID < out[j].AlertID
		}
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out, nil
}

func (m *MemStore) InsertIncident(ctx context.Context, inc *model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, *inc)
	return nil
}

func (m *MemStore) UpdateRemediation(ctx context.Context, incidentID, action string, status model.RemediationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		inc := &m.incidents[i]
		if inc.IncidentID == incidentID && inc.Status != model.IncidentResolved {
			inc.RemediationAction = action
			inc.RemediationStatus = status
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) ResolveOpenIncidents(ctx context.Context, alertID string, resolvedAt time.Time, mttd, mttr float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.incidents {
		inc := &m.incidents[i]
		if inc.AlertID == alertID && inc.Status != model.IncidentResolved {
			resolveInPlace(inc, resolvedAt, mttd, mttr)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time, mttd, mttr float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.incidents {
		inc := &m.incidents[i]
		if inc.IncidentID == incidentID && inc.Status != model.IncidentResolved {
			resolveInPlace(inc, resolvedAt, mttd, mttr)
			return true, nil
		}
	}
	return false, nil
}

func resolveInPlace(inc *model.Incident, resolvedAt time.Time, mttd, mttr float64) {
	inc.Status = model.IncidentResolved
	inc.ResolvedAt = &resolvedAt
	inc.MTTDSeconds = mttd
	inc.MTTRSeconds = mttr
}

func (m *MemStore) ListOpenIncidents(ctx context.Context, alertID string) ([]model.Incident, error) {
	return m.listIncidents(func(inc model.Incident) bool {
		return inc.AlertID == alertID && inc.Status != model.IncidentResolved
	}), nil
}

func (m *MemStore) ListIncidentsSince(ctx context.Context, since time.Time) ([]model.Incident, error) {
	return m.listIncidents(func(inc model.Incident) bool {
		return inc.StartedAt.After(since)
	}), nil
}

// listIncidents returns matches newest first; equal start times keep the later insert first.
func (m *MemStore) listIncidents(keep func(model.Incident) bool) []model.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Incident, 0, 8)
	for i := len(m.incidents) - 1; i >= 0; i-- {
		if keep(m.incidents[i]) {
			out = append(out, m.incidents[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *MemStore) UpsertFeedHealth(ctx context.Context, hb model.FeedHeartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[hb.FeedName]
	if !ok {
		f = model.FeedHealth{FeedName: hb.FeedName, LastHeartbeat: hb.At}
	}
	f.FeedType = hb.FeedType
	if hb.At.After(f.LastHeartbeat) {
		f.LastHeartbeat = hb.At
	}
	f.Status = hb.Status
	f.LatencyMs = hb.LatencyMs
	f.MessageCount++
	if hb.Error {
		f.ErrorCount++
	}
	m.feeds[hb.FeedName] = f
	return nil
}

func (m *MemStore) ListFeedHealth(ctx context.Context) ([]model.FeedHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FeedHealth, 0, len(m.feeds))
	for _, f := range m.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedName < out[j].FeedName })
	return out, nil
}

func (m *MemStore) UpsertRunbook(ctx context.Context, rb *model.Runbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runbooks[rb.RunbookID] = *rb
	return nil
}

func (m *MemStore) GetRunbook(ctx context.Context, alertType string) (*model.Runbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.runbooks))
	for id := range m.runbooks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if rb := m.runbooks[id]; rb.AlertType == alertType {
			return &rb, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListRunbooks(ctx context.Context) ([]model.Runbook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Runbook, 0, len(m.runbooks))
	for _, rb := range m.runbooks {
		out = append(out, rb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunbookID < out[j].RunbookID })
	return out, nil
}
