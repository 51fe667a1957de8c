package model

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

type ConditionType string

const (
	ConditionThreshold ConditionType = "threshold"
	ConditionStale     ConditionType = "stale"
	ConditionRate      ConditionType = "rate"
)

func (c ConditionType) Valid() bool {
	switch c {
	case ConditionThreshold, ConditionStale, ConditionRate:
		return true
	}
	return false
}

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is one occurrence of a rule firing. The alerts table holds one row per AlertID;
// a re-trigger overwrites the previous resolved row.
type Alert struct {
	AlertID       string        `json:"alert_id"`
	Name          string        `json:"name"`
	Severity      Severity      `json:"severity"`
	ConditionType ConditionType `json:"condition_type"`
	Threshold     *float64      `json:"threshold,omitempty"`
	CurrentValue  float64       `json:"current_value"`
	Status        AlertStatus   `json:"status"`
	TriggeredAt   time.Time     `json:"triggered_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	Message       string        `json:"message"`
	// CreatedAt is the detection timestamp used for MTTD; it equals TriggeredAt for
	// alerts raised by the engine.
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the alert still counts against the one-live-alert-per-rule invariant.
func (a *Alert) Live() bool {
	return a != nil && a.Status != AlertResolved
}
