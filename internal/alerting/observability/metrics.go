package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/qiniu/venueops/internal/alerting/model"
)

const namespace = "venueops"

// Metrics holds the process-level instruments of the monitor. A nil *Metrics is
// valid and records nothing, so components can be built without a registry.
type Metrics struct {
	ObservationsRecorded prometheus.Counter
	ObservationsDropped  prometheus.Counter
	FlushTotal           *prometheus.CounterVec
	FlushBatchSize       prometheus.Histogram
	PendingObservations  prometheus.Gauge

	EvaluationsTotal *prometheus.CounterVec
	AlertsTriggered  *prometheus.CounterVec
	AlertsResolved   *prometheus.CounterVec
	ActiveAlerts     prometheus.Gauge

	IncidentsOpened  *prometheus.CounterVec
	IncidentMTTR     prometheus.Histogram
	RemediationsDone *prometheus.CounterVec

	KPI *prometheus.GaugeVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ObservationsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "recorder",
			Name: "observations_recorded_total",
			Help: "Observations accepted by the recorder",
		}),
		ObservationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "recorder",
			Name: "observations_dropped_total",
			Help: "Observations dropped because the pending buffer overflowed",
		}),
		FlushTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "recorder",
			Name: "flush_total",
			Help: "Flush attempts by result",
		}, []string{"result"}),
		FlushBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "recorder",
			Name:    "flush_batch_size",
			Help:    "Observations written per successful flush",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		PendingObservations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "recorder",
			Name: "pending_observations",
			Help: "Observations buffered and not yet confirmed written",
		}),
		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "evaluations_total",
			Help: "Alert evaluation cycles by result",
		}, []string{"result"}),
		AlertsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "alerts_triggered_total",
			Help: "Alerts raised by rule",
		}, []string{"rule", "severity"}),
		AlertsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "alerts_resolved_total",
			Help: "Alerts resolved by rule",
		}, []string{"rule"}),
		ActiveAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine",
			Name: "live_alerts",
			Help: "Alerts currently active or acknowledged",
		}),
		IncidentsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incidents",
			Name: "opened_total",
			Help: "Incidents opened by alert id",
		}, []string{"alert_id"}),
		IncidentMTTR: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "incidents",
			Name:    "mttr_seconds",
			Help:    "Time from trigger to resolution",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		RemediationsDone: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incidents",
			Name: "remediations_total",
			Help: "Remediation actions applied by alert id and status",
		}, []string{"alert_id", "status"}),
		KPI: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "kpi",
			Name: "value",
			Help: "Most recent KPI snapshot computed by the evaluation loop",
		}, []string{"kpi"}),
	}
}

func (m *Metrics) Recorded(n int) {
	if m == nil {
		return
	}
	m.ObservationsRecorded.Add(float64(n))
}

func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObservationsDropped.Add(float64(n))
}

func (m *Metrics) Flushed(batch int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.FlushTotal.WithLabelValues("error").Inc()
		return
	}
	m.FlushTotal.WithLabelValues("ok").Inc()
	m.FlushBatchSize.Observe(float64(batch))
}

func (m *Metrics) Pending(n int) {
	if m == nil {
		return
	}
	m.PendingObservations.Set(float64(n))
}

func (m *Metrics) Evaluated(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EvaluationsTotal.WithLabelValues("error").Inc()
		return
	}
	m.EvaluationsTotal.WithLabelValues("ok").Inc()
}

func (m *Metrics) Triggered(a *model.Alert) {
	if m == nil || a == nil {
		return
	}
	m.AlertsTriggered.WithLabelValues(a.AlertID, string(a.Severity)).Inc()
}

func (m *Metrics) Resolved(alertID string) {
	if m == nil {
		return
	}
	m.AlertsResolved.WithLabelValues(alertID).Inc()
}

func (m *Metrics) LiveAlerts(n int) {
	if m == nil {
		return
	}
	m.ActiveAlerts.Set(float64(n))
}

func (m *Metrics) IncidentOpened(alertID string) {
	if m == nil {
		return
	}
	m.IncidentsOpened.WithLabelValues(alertID).Inc()
}

func (m *Metrics) IncidentResolved(mttr float64) {
	if m == nil {
		return
	}
	m.IncidentMTTR.Observe(mttr)
}

func (m *Metrics) Remediation(alertID string, status model.RemediationStatus) {
	if m == nil {
		return
	}
	m.RemediationsDone.WithLabelValues(alertID, string(status)).Inc()
}

// Snapshot publishes every field of s as a kpi gauge.
func (m *Metrics) Snapshot(s model.KPISnapshot) {
	if m == nil {
		return
	}
	m.KPI.WithLabelValues("fill_rate").Set(s.FillRate)
	m.KPI.WithLabelValues("cancel_rate").Set(s.CancelRate)
	m.KPI.WithLabelValues("reject_rate").Set(s.RejectRate)
	m.KPI.WithLabelValues("latency_p50").Set(s.LatencyP50)
	m.KPI.WithLabelValues("latency_p95").Set(s.LatencyP95)
	m.KPI.WithLabelValues("latency_p99").Set(s.LatencyP99)
	m.KPI.WithLabelValues("position_exposure").Set(s.PositionExposure)
	m.KPI.WithLabelValues("order_count").Set(float64(s.OrderCount))
	m.KPI.WithLabelValues("message_rate").Set(s.MessageRate)
}
