package model

// Runbook documents triage and remediation for one alert type.
type Runbook struct {
	RunbookID        string   `json:"runbook_id" yaml:"id"`
	Title            string   `json:"title" yaml:"title"`
	AlertType        string   `json:"alert_type" yaml:"alert_type"`
	Severity         Severity `json:"severity" yaml:"severity"`
	Description      string   `json:"description" yaml:"description"`
	TriageSteps      []string `json:"triage_steps" yaml:"triage_steps"`
	RemediationSteps []string `json:"remediation_steps" yaml:"remediation_steps"`
	RollbackSteps    []string `json:"rollback_steps,omitempty" yaml:"rollback_steps"`
	RelatedAlerts    []string `json:"related_alerts,omitempty" yaml:"related_alerts"`
}
