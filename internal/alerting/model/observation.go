package model

import (
	"encoding/json"
	"time"
)

// Metric types written by the ingestion path.
const (
	MetricTypeOrder      = "order"
	MetricTypeMarketData = "market_data"
	MetricTypeLatency    = "latency"
	MetricTypePosition   = "position"
)

// Metric names with meaning to the KPI aggregator.
const (
	MetricNameFill             = "fill"
	MetricNameCancel           = "cancel"
	MetricNameReject           = "reject"
	MetricNameLatency          = "latency"
	MetricNamePositionExposure = "position_exposure"
)

// Observation is one timestamped numeric sample. It is never mutated after creation.
type Observation struct {
	Timestamp  time.Time       `json:"timestamp"`
	MetricType string          `json:"metric_type"`
	MetricName string          `json:"metric_name"`
	Value      float64         `json:"value"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// MetricQuery selects observations newer than Since. An observation matches when its
// type is in Types or its name is in Names; both empty matches everything.
// Name restricts the result to one metric name regardless of Types/Names.
type MetricQuery struct {
	Since time.Time
	Types []string
	Names []string
	Name  string
}

// Match reports whether o satisfies q.
func (q MetricQuery) Match(o Observation) bool {
	if !o.Timestamp.After(q.Since) {
		return false
	}
	if q.Name != "" {
		return o.MetricName == q.Name
	}
	if len(q.Types) == 0 && len(q.Names) == 0 {
		return true
	}
	for _, t := range q.Types {
		if o.MetricType == t {
			return true
		}
	}
	for _, n := range q.Names {
		if o.MetricName == n {
			return true
		}
	}
	return false
}
