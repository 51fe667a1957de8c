package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/venueops/internal/alerting/cache"
	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/observability"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/rs/zerolog/log"
)

type Options struct {
	FollowUpDelay time.Duration
	Cache         cache.AlertCache
	Metrics       *observability.Metrics
}

// Manager opens, remediates and resolves incidents. Each alert trigger gets its
// own incident; pending follow-up remediation is keyed by incident id.
type Manager struct {
	store   store.IncidentStore
	cache   cache.AlertCache
	metrics *observability.Metrics
	delay   time.Duration

	// test hooks
	newID     func() string
	afterFunc func(time.Duration, func()) stopper

	mu        sync.Mutex
	followUps map[string]stopper
}

func NewManager(s store.IncidentStore, opts Options) *Manager {
	if opts.FollowUpDelay <= 0 {
		opts.FollowUpDelay = DefaultFollowUpDelay
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopCache{}
	}
	return &Manager{
		store:     s,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		delay:     opts.FollowUpDelay,
		newID:     func() string { return "INC-" + uuid.NewString() },
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		followUps: map[string]stopper{},
	}
}

// OpenIncident persists a new open incident for a just-triggered alert.
func (m *Manager) OpenIncident(ctx context.Context, a *model.Alert) (*model.Incident, error) {
	inc := &model.Incident{
		IncidentID:        m.newID(),
		AlertID:           a.AlertID,
		Title:             a.Name,
		Description:       a.Message,
		Severity:          a.Severity,
		Status:            model.IncidentOpen,
		RemediationStatus: model.RemediationPending,
		StartedAt:         a.TriggeredAt,
	}
	if err := m.store.InsertIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("open incident for %s: %w", a.AlertID, err)
	}
	m.metrics.IncidentOpened(a.AlertID)
	if err := m.cache.WriteIncident(ctx, inc); err != nil {
		log.Error().Err(err).Str("incident_id", inc.IncidentID).Msg("failed to write incident to cache")
	}
	log.Info().Str("incident_id", inc.IncidentID).Str("alert_id", a.AlertID).Str("severity", string(a.Severity)).Msg("incident opened")
	return inc, nil
}

// AutoRemediate applies the plan for the alert to inc and schedules its follow-up.
// Alerts without a plan leave the incident pending.
func (m *Manager) AutoRemediate(ctx context.Context, a *model.Alert, inc *model.Incident) error {
	plan, ok := PlanFor(a.AlertID)
	if !ok {
		log.Warn().Str("alert_id", a.AlertID).Msg("no remediation plan, incident left pending")
		return nil
	}
	updated, err := m.store.UpdateRemediation(ctx, inc.IncidentID, plan.Action, plan.Status)
	if err != nil {
		return fmt.Errorf("remediate %s: %w", inc.IncidentID, err)
	}
	if !updated {
		log.Warn().Str("incident_id", inc.IncidentID).Msg("incident no longer open, remediation skipped")
		return nil
	}
	inc.RemediationAction = plan.Action
	inc.RemediationStatus = plan.Status
	m.metrics.Remediation(a.AlertID, plan.Status)
	if err := m.cache.WriteIncident(ctx, inc); err != nil {
		log.Error().Err(err).Str("incident_id", inc.IncidentID).Msg("failed to write incident to cache")
	}
	log.Info().Str("incident_id", inc.IncidentID).Str("action", plan.Action).Str("status", string(plan.Status)).Msg("remediation applied")

	if plan.FollowUp != nil {
		m.scheduleFollowUp(inc.IncidentID, a.AlertID, *plan.FollowUp)
	}
	return nil
}

func (m *Manager) scheduleFollowUp(incidentID, alertID string, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.followUps[incidentID]; ok {
		old.Stop()
	}
	m.followUps[incidentID] = m.afterFunc(m.delay, func() {
		m.runFollowUp(incidentID, alertID, step)
	})
}

func (m *Manager) runFollowUp(incidentID, alertID string, step Step) {
	m.mu.Lock()
	_, pending := m.followUps[incidentID]
	delete(m.followUps, incidentID)
	m.mu.Unlock()
	if !pending {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	updated, err := m.store.UpdateRemediation(ctx, incidentID, step.Action, step.Status)
	if err != nil {
		log.Error().Err(err).Str("incident_id", incidentID).Msg("follow-up remediation failed")
		return
	}
	if !updated {
		log.Debug().Str("incident_id", incidentID).Msg("incident resolved before follow-up")
		return
	}
	m.metrics.Remediation(alertID, step.Status)
	log.Info().Str("incident_id", incidentID).Str("action", step.Action).Str("status", string(step.Status)).Msg("follow-up remediation applied")
}

// cancelFollowUp drops the pending follow-up of incidentID, if any.
func (m *Manager) cancelFollowUp(incidentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.followUps[incidentID]; ok {
		t.Stop()
		delete(m.followUps, incidentID)
	}
}

// PendingFollowUps reports how many follow-ups are scheduled.
func (m *Manager) PendingFollowUps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.followUps)
}

// Stop cancels every pending follow-up.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.followUps {
		t.Stop()
		delete(m.followUps, id)
	}
}

// Durations returns MTTD and MTTR in seconds for an alert resolved at resolvedAt.
// MTTD is non-zero only when the alert carries a detection time earlier than its trigger.
func Durations(a *model.Alert, resolvedAt time.Time) (mttd, mttr float64) {
	if !a.CreatedAt.IsZero() && a.CreatedAt.Before(a.TriggeredAt) {
		mttd = a.TriggeredAt.Sub(a.CreatedAt).Seconds()
	}
	mttr = resolvedAt.Sub(a.TriggeredAt).Seconds()
	if mttr < 0 {
		mttr = 0
	}
	return mttd, mttr
}

// ResolveIncident resolves the open incident of the alert and cancels its follow-up.
func (m *Manager) ResolveIncident(ctx context.Context, a *model.Alert, resolvedAt time.Time) error {
	open, err := m.store.ListOpenIncidents(ctx, a.AlertID)
	if err != nil {
		log.Warn().Err(err).Str("alert_id", a.AlertID).Msg("list open incidents failed; resolving by alert id")
	}
	for _, inc := range open {
		m.cancelFollowUp(inc.IncidentID)
	}

	mttd, mttr := Durations(a, resolvedAt)
	n, err := m.store.ResolveOpenIncidents(ctx, a.AlertID, resolvedAt, mttd, mttr)
	if err != nil {
		return fmt.Errorf("resolve incident for %s: %w", a.AlertID, err)
	}
	switch {
	case n == 0:
		log.Warn().Str("alert_id", a.AlertID).Msg("no open incident to resolve")
	case n > 1:
		v := &model.InvariantViolation{AlertID: a.AlertID, Detail: fmt.Sprintf("%d open incidents resolved together", n)}
		log.Error().Err(v).Msg("incident invariant violated")
	}
	for _, inc := range open {
		if err := m.cache.ResolveIncident(ctx, inc.IncidentID, resolvedAt, mttr); err != nil {
			log.Error().Err(err).Str("incident_id", inc.IncidentID).Msg("failed to resolve incident in cache")
		}
	}
	if n > 0 {
		m.metrics.IncidentResolved(mttr)
	}
	log.Info().Str("alert_id", a.AlertID).Float64("mttr_seconds", mttr).Float64("mttd_seconds", mttd).Int64("incidents", n).Msg("incident resolved")
	return nil
}

// Reconcile enforces one open incident per alert id: the newest open incident is
// kept and returned, older ones are resolved. nil means none is open.
func (m *Manager) Reconcile(ctx context.Context, alertID string, now time.Time) (*model.Incident, error) {
	open, err := m.store.ListOpenIncidents(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", alertID, err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	keep := open[0]
	for _, stale := range open[1:] {
		v := &model.InvariantViolation{AlertID: alertID, Detail: "duplicate open incident " + stale.IncidentID}
		log.Error().Err(v).Str("kept", keep.IncidentID).Msg("incident invariant violated, resolving older incident")
		m.cancelFollowUp(stale.IncidentID)
		mttr := max(now.Sub(stale.StartedAt).Seconds(), 0)
		if _, err := m.store.ResolveIncident(ctx, stale.IncidentID, now, 0, mttr); err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", alertID, err)
		}
		if err := m.cache.ResolveIncident(ctx, stale.IncidentID, now, mttr); err != nil {
			log.Error().Err(err).Str("incident_id", stale.IncidentID).Msg("failed to resolve incident in cache")
		}
	}
	return &keep, nil
}

// GetRecentIncidents returns incidents started within the last hours, newest first.
func (m *Manager) GetRecentIncidents(ctx context.Context, hours int) ([]model.Incident, error) {
	if hours <= 0 {
		return nil, model.ErrInvalidWindow
	}
	out, err := m.store.ListIncidentsSince(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("recent incidents: %w", err)
	}
	return out, nil
}
