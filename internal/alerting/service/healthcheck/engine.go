package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qiniu/venueops/internal/alerting/cache"
	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/observability"
	"github.com/qiniu/venueops/internal/alerting/service/ruleset"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/rs/zerolog/log"
)

type EngineOptions struct {
	Cache   cache.AlertCache
	Metrics *observability.Metrics
}

// Engine runs the per-rule alert state machine. At most one live (active or
// acknowledged) alert exists per rule id; evaluation cycles never overlap.
type Engine struct {
	rules     []ruleset.AlertRule
	alerts    store.AlertStore
	incidents IncidentHandler
	cache     cache.AlertCache
	metrics   *observability.Metrics
	now       func() time.Time

	mu   sync.Mutex
	live map[string]*model.Alert
	// live alerts whose incident has not been opened yet
	needIncident map[string]bool
	// resolved alerts whose incident has not been closed yet
	needResolve map[string]pendingResolution
}

func NewEngine(rules []ruleset.AlertRule, alerts store.AlertStore, incidents IncidentHandler, opts EngineOptions) *Engine {
	if opts.Cache == nil {
		opts.Cache = cache.NoopCache{}
	}
	return &Engine{
		rules:        rules,
		alerts:       alerts,
		incidents:    incidents,
		cache:        opts.Cache,
		metrics:      opts.Metrics,
		now:          time.Now,
		live:         map[string]*model.Alert{},
		needIncident: map[string]bool{},
		needResolve:  map[string]pendingResolution{},
	}
}

// CheckAlerts evaluates every rule in declaration order against the snapshot and
// feeds, applies the resulting transitions and returns the alerts newly triggered
// in this cycle. Failed side effects are retried on the next cycle and reported
// through the joined error alongside the triggered list.
func (e *Engine) CheckAlerts(ctx context.Context, snap model.KPISnapshot, feeds []model.FeedHealth) ([]model.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var errs []error
	errs = append(errs, e.retryResolutionsLocked(ctx)...)

	in := ruleset.Input{Snapshot: snap, Feeds: feeds, Now: now}
	triggered := make([]model.Alert, 0, 2)
	for i := range e.rules {
		r := &e.rules[i]
		fired, value := r.Evaluate(in)
		existing := e.live[r.ID]

		switch {
		case fired && existing == nil:
			if _, pending := e.needResolve[r.ID]; pending {
				// the previous incident must close before a new one opens
				continue
			}
			a, err := e.triggerLocked(ctx, r, value, now)
			if a != nil {
				triggered = append(triggered, *a)
			}
			if err != nil {
				errs = append(errs, err)
			}
		case fired && e.needIncident[r.ID]:
			if err := e.openIncidentLocked(ctx, existing); err != nil {
				errs = append(errs, err)
			}
		case !fired && existing != nil:
			if err := e.resolveLocked(ctx, existing, now); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.metrics.LiveAlerts(len(e.live))

	err := errors.Join(errs...)
	e.metrics.Evaluated(err)
	return triggered, err
}

func (e *Engine) triggerLocked(ctx context.Context, r *ruleset.AlertRule, value float64, now time.Time) (*model.Alert, error) {
	var threshold *float64
	if r.Threshold != nil {
		th := *r.Threshold
		threshold = &th
	}
	a := &model.Alert{
		AlertID:       r.ID,
		Name:          r.Name,
		Severity:      r.Severity,
		ConditionType: r.ConditionType,
		Threshold:     threshold,
		CurrentValue:  value,
		Status:        model.AlertActive,
		TriggeredAt:   now,
		Message:       r.Message,
		CreatedAt:     now,
	}
	if err := e.alerts.UpsertAlert(ctx, a); err != nil {
		log.Error().Err(err).Str("alert_id", r.ID).Msg("persist alert failed, trigger deferred to next cycle")
		return nil, fmt.Errorf("trigger %s: %w", r.ID, err)
	}
	e.live[r.ID] = a
	e.metrics.Triggered(a)
	if err := e.cache.WriteAlert(ctx, a); err != nil {
		log.Error().Err(err).Str("alert_id", a.AlertID).Msg("failed to write alert to cache")
	}
	log.Warn().Str("alert_id", a.AlertID).Str("severity", string(a.Severity)).Float64("value", value).Msg("alert triggered")

	e.needIncident[a.AlertID] = true
	// a failed open leaves needIncident set and is retried while the rule keeps firing
	return a, e.openIncidentLocked(ctx, a)
}

func (e *Engine) openIncidentLocked(ctx context.Context, a *model.Alert) error {
	inc, err := e.incidents.OpenIncident(ctx, a)
	if err != nil {
		log.Error().Err(err).Str("alert_id", a.AlertID).Msg("incident open failed")
		return err
	}
	delete(e.needIncident, a.AlertID)
	if err := e.incidents.AutoRemediate(ctx, a, inc); err != nil {
		log.Error().Err(err).Str("incident_id", inc.IncidentID).Msg("auto remediation failed")
		return err
	}
	return nil
}

func (e *Engine) resolveLocked(ctx context.Context, a *model.Alert, now time.Time) error {
	if err := e.alerts.ResolveAlert(ctx, a.AlertID, now); err != nil {
		log.Error().Err(err).Str("alert_id", a.AlertID).Msg("persist resolution failed, retrying next cycle")
		return fmt.Errorf("resolve %s: %w", a.AlertID, err)
	}
	delete(e.live, a.AlertID)
	hadIncident := !e.needIncident[a.AlertID]
	delete(e.needIncident, a.AlertID)

	resolved := *a
	resolved.Status = model.AlertResolved
	resolved.ResolvedAt = &now
	e.metrics.Resolved(a.AlertID)
	if err := e.cache.ResolveAlert(ctx, a.AlertID, now); err != nil {
		log.Error().Err(err).Str("alert_id", a.AlertID).Msg("failed to resolve alert in cache")
	}
	log.Info().Str("alert_id", a.AlertID).Dur("active_for", now.Sub(a.TriggeredAt)).Msg("alert resolved")

	if !hadIncident {
		return nil
	}
	if err := e.incidents.ResolveIncident(ctx, &resolved, now); err != nil {
		e.needResolve[a.AlertID] = pendingResolution{alert: &resolved, resolvedAt: now}
		return err
	}
	return nil
}

func (e *Engine) retryResolutionsLocked(ctx context.Context) []error {
	if len(e.needResolve) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.needResolve))
	for id := range e.needResolve {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var errs []error
	for _, id := range ids {
		p := e.needResolve[id]
		if err := e.incidents.ResolveIncident(ctx, p.alert, p.resolvedAt); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(e.needResolve, id)
	}
	return errs
}

// Acknowledge marks a live alert as seen by an operator. It stays live: it keeps
// suppressing re-triggers and still resolves when its condition clears.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) (*model.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.live[alertID]
	if !ok {
		return nil, model.ErrAlertNotFound
	}
	if a.Status == model.AlertAcknowledged {
		out := *a
		return &out, nil
	}
	updated, err := e.alerts.AcknowledgeAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("acknowledge %s: %w", alertID, err)
	}
	if !updated {
		log.Warn().Str("alert_id", alertID).Msg("alert row was not active while acknowledging")
	}
	a.Status = model.AlertAcknowledged
	if err := e.cache.WriteAlert(ctx, a); err != nil {
		log.Error().Err(err).Str("alert_id", alertID).Msg("failed to write alert to cache")
	}
	log.Info().Str("alert_id", alertID).Msg("alert acknowledged")
	out := *a
	return &out, nil
}

// Restore loads live alerts persisted by a previous process and reconciles their
// incidents. It must run before the first CheckAlerts.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	known := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		known[r.ID] = true
	}
	rows, err := e.alerts.ListAlerts(ctx, model.AlertActive, model.AlertAcknowledged)
	if err != nil {
		return fmt.Errorf("restore alerts: %w", err)
	}
	now := e.now()
	for i := range rows {
		a := rows[i]
		if !known[a.AlertID] {
			log.Warn().Str("alert_id", a.AlertID).Msg("live alert for unknown rule ignored")
			continue
		}
		if _, dup := e.live[a.AlertID]; dup {
			continue
		}
		e.live[a.AlertID] = &a
		inc, err := e.incidents.Reconcile(ctx, a.AlertID, now)
		if err != nil {
			return err
		}
		if inc == nil {
			e.needIncident[a.AlertID] = true
		}
		log.Info().Str("alert_id", a.AlertID).Str("status", string(a.Status)).Bool("has_incident", inc != nil).Msg("live alert restored")
	}
	e.metrics.LiveAlerts(len(e.live))
	return nil
}

// LiveAlerts returns the in-memory live alerts in rule order.
func (e *Engine) LiveAlerts() []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Alert, 0, len(e.live))
	for _, r := range e.rules {
		if a, ok := e.live[r.ID]; ok {
			out = append(out, *a)
		}
	}
	return out
}

// GetActiveAlerts returns persisted alerts in status active, newest trigger first.
func (e *Engine) GetActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	out, err := e.alerts.ListAlerts(ctx, model.AlertActive)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	return out, nil
}
