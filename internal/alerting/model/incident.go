package model

import "time"

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
)

type RemediationStatus string

const (
	RemediationPending    RemediationStatus = "pending"
	RemediationInProgress RemediationStatus = "in_progress"
	RemediationCompleted  RemediationStatus = "completed"
)

// Incident is created once per alert trigger and closed when that alert resolves.
type Incident struct {
	IncidentID        string            `json:"incident_id"`
	AlertID           string            `json:"alert_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Severity          Severity          `json:"severity"`
	Status            IncidentStatus    `json:"status"`
	RemediationAction string            `json:"remediation_action"`
	RemediationStatus RemediationStatus `json:"remediation_status"`
	StartedAt         time.Time         `json:"started_at"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	MTTDSeconds       float64           `json:"mttd_seconds"`
	MTTRSeconds       float64           `json:"mttr_seconds"`
}
