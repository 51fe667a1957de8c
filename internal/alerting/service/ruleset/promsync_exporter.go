package ruleset

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ThresholdExporter exposes each rule's effective threshold as a gauge so that
// dashboards can draw the alert line next to the KPI series.
type ThresholdExporter struct {
	mu         sync.RWMutex
	thresholds map[string]float64
	gauge      *prometheus.GaugeVec
}

// NewThresholdExporter registers the gauge on reg. A nil reg keeps values in memory only.
func NewThresholdExporter(reg prometheus.Registerer) *ThresholdExporter {
	e := &ThresholdExporter{thresholds: make(map[string]float64)}
	if reg != nil {
		e.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venueops",
			Subsystem: "rule",
			Name:      "threshold",
			Help:      "Effective alert rule threshold",
		}, []string{"rule", "severity"})
		reg.MustRegister(e.gauge)
	}
	return e
}

func (e *ThresholdExporter) SyncThreshold(ctx context.Context, r *AlertRule) error {
	if r == nil || r.ID == "" || r.Threshold == nil {
		return fmt.Errorf("invalid rule: missing id or threshold")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds[r.ID] = *r.Threshold
	if e.gauge != nil {
		e.gauge.WithLabelValues(r.ID, string(r.Severity)).Set(*r.Threshold)
	}
	return nil
}

// ForTestingGet exposes current values for assertions in unit tests.
func (e *ThresholdExporter) ForTestingGet(rule string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.thresholds[rule]
	return v, ok
}
