package remediation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimers captures scheduled callbacks so tests fire them explicitly.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	ts := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range ts {
		if !t.stopped {
			t.fn()
		}
	}
}

func newTestManager(t *testing.T) (*Manager, *store.MemStore, *fakeTimers) {
	t.Helper()
	s := store.NewMemStore()
	m := NewManager(s, Options{})
	ft := &fakeTimers{}
	m.afterFunc = ft.afterFunc
	n := 0
	m.newID = func() string { n++; return fmt.Sprintf("INC-%d", n) }
	return m, s, ft
}

func alertFor(id string, severity model.Severity, at time.Time) *model.Alert {
	return &model.Alert{AlertID: id, Name: id, Severity: severity, Status: model.AlertActive,
		TriggeredAt: at, CreatedAt: at, Message: id + " fired"}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestManager_AutoRemediatePlans(t *testing.T) {
	tests := []struct {
		alertID    string
		wantAction string
		wantStatus model.RemediationStatus
		followUp   bool
	}{
		{"stale_feed", "attempt automatic reconnection", model.RemediationInProgress, true},
		{"high_latency", "switch to backup order gateway", model.RemediationInProgress, false},
		{"high_rejects", "reduce order rate by 50%", model.RemediationInProgress, false},
		{"risk_breach", "kill-switch activated: trading halted", model.RemediationCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.alertID, func(t *testing.T) {
			ctx := context.Background()
			m, s, ft := newTestManager(t)
			a := alertFor(tt.alertID, model.SeverityWarning, t0)

			inc, err := m.OpenIncident(ctx, a)
			require.NoError(t, err)
			assert.Equal(t, model.IncidentOpen, inc.Status)
			assert.Equal(t, t0, inc.StartedAt)
			assert.Equal(t, model.RemediationPending, inc.RemediationStatus)

			require.NoError(t, m.AutoRemediate(ctx, a, inc))
			open, err := s.ListOpenIncidents(ctx, tt.alertID)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, tt.wantAction, open[0].RemediationAction)
			assert.Equal(t, tt.wantStatus, open[0].RemediationStatus)
			assert.Equal(t, tt.followUp, len(ft.timers) == 1)
		})
	}
}

func TestManager_FollowUpCompletesOpenIncident(t *testing.T) {
	ctx := context.Background()
	m, s, ft := newTestManager(t)
	a := alertFor("stale_feed", model.SeverityCritical, t0)
	inc, err := m.OpenIncident(ctx, a)
	require.NoError(t, err)
	require.NoError(t, m.AutoRemediate(ctx, a, inc))
	require.Len(t, ft.timers, 1)
	assert.Equal(t, DefaultFollowUpDelay, ft.timers[0].delay)

	ft.fireAll()
	open, err := s.ListOpenIncidents(ctx, "stale_feed")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "reconnection successful", open[0].RemediationAction)
	assert.Equal(t, model.RemediationCompleted, open[0].RemediationStatus)
	assert.Equal(t, 0, m.PendingFollowUps())
}

func TestManager_ResolveCancelsFollowUp(t *testing.T) {
	ctx := context.Background()
	m, s, ft := newTestManager(t)
	a := alertFor("stale_feed", model.SeverityCritical, t0)
	inc, err := m.OpenIncident(ctx, a)
	require.NoError(t, err)
	require.NoError(t, m.AutoRemediate(ctx, a, inc))

	require.NoError(t, m.ResolveIncident(ctx, a, t0.Add(2*time.Second)))
	assert.True(t, ft.timers[0].stopped)
	assert.Equal(t, 0, m.PendingFollowUps())

	// even a timer that slipped through must not touch the resolved incident
	ft.timers[0].fn()
	all, err := s.ListIncidentsSince(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.IncidentResolved, all[0].Status)
	assert.Equal(t, "attempt automatic reconnection", all[0].RemediationAction)
	assert.Equal(t, 2.0, all[0].MTTRSeconds)
	assert.Equal(t, 0.0, all[0].MTTDSeconds)
}

func TestManager_FollowUpKeyedByIncident(t *testing.T) {
	ctx := context.Background()
	m, s, ft := newTestManager(t)

	first := alertFor("stale_feed", model.SeverityCritical, t0)
	inc1, err := m.OpenIncident(ctx, first)
	require.NoError(t, err)
	require.NoError(t, m.AutoRemediate(ctx, first, inc1))
	require.NoError(t, m.ResolveIncident(ctx, first, t0.Add(time.Second)))

	second := alertFor("stale_feed", model.SeverityCritical, t0.Add(10*time.Second))
	inc2, err := m.OpenIncident(ctx, second)
	require.NoError(t, err)
	require.NoError(t, m.AutoRemediate(ctx, second, inc2))
	require.Len(t, ft.timers, 2)

	// the first trigger's timer firing late must not complete the second incident
	ft.timers[0].fn()
	open, err := s.ListOpenIncidents(ctx, "stale_feed")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, inc2.IncidentID, open[0].IncidentID)
	assert.Equal(t, model.RemediationInProgress, open[0].RemediationStatus)

	ft.timers[1].fn()
	open, err = s.ListOpenIncidents(ctx, "stale_feed")
	require.NoError(t, err)
	assert.Equal(t, model.RemediationCompleted, open[0].RemediationStatus)
}

func TestDurations(t *testing.T) {
	a := &model.Alert{TriggeredAt: t0, CreatedAt: t0}
	mttd, mttr := Durations(a, t0.Add(90*time.Second))
	assert.Equal(t, 0.0, mttd)
	assert.Equal(t, 90.0, mttr)

	a = &model.Alert{TriggeredAt: t0, CreatedAt: t0.Add(-1500 * time.Millisecond)}
	mttd, _ = Durations(a, t0)
	assert.Equal(t, 1.5, mttd)

	_, mttr = Durations(&model.Alert{TriggeredAt: t0}, t0.Add(-time.Second))
	assert.Equal(t, 0.0, mttr, "never negative")
}

func TestManager_ReconcileKeepsNewest(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestManager(t)
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-old", AlertID: "risk_breach", Status: model.IncidentOpen, StartedAt: t0}))
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-new", AlertID: "risk_breach", Status: model.IncidentOpen, StartedAt: t0.Add(time.Minute)}))

	kept, err := m.Reconcile(ctx, "risk_breach", t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "INC-new", kept.IncidentID)

	open, err := s.ListOpenIncidents(ctx, "risk_breach")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "INC-new", open[0].IncidentID)

	none, err := m.Reconcile(ctx, "high_latency", t0)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestManager_GetRecentIncidents(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestManager(t)
	now := time.Now()
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-a", AlertID: "x", StartedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-b", AlertID: "x", StartedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.InsertIncident(ctx, &model.Incident{IncidentID: "INC-c", AlertID: "y", StartedAt: now.Add(-time.Hour)}))

	got, err := m.GetRecentIncidents(ctx, 24)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INC-c", got[0].IncidentID)
	assert.Equal(t, "INC-b", got[1].IncidentID)

	_, err = m.GetRecentIncidents(ctx, 0)
	assert.ErrorIs(t, err, model.ErrInvalidWindow)
}
