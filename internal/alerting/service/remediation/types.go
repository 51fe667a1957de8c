package remediation

import (
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
)

// Step is one remediation action and the status it leaves the incident in.
type Step struct {
	Action string
	Status model.RemediationStatus
}

// Plan is the automatic response to one alert id. FollowUp, when set, is applied
// after the manager's follow-up delay if the incident is still open.
type Plan struct {
	Step
	FollowUp *Step
}

var plans = map[string]Plan{
	"stale_feed": {
		Step:     Step{Action: "attempt automatic reconnection", Status: model.RemediationInProgress},
		FollowUp: &Step{Action: "reconnection successful", Status: model.RemediationCompleted},
	},
	"high_latency": {
		Step: Step{Action: "switch to backup order gateway", Status: model.RemediationInProgress},
	},
	"risk_breach": {
		Step: Step{Action: "kill-switch activated: trading halted", Status: model.RemediationCompleted},
	},
	"high_rejects": {
		Step: Step{Action: "reduce order rate by 50%", Status: model.RemediationInProgress},
	},
}

// PlanFor returns the remediation plan for alertID.
func PlanFor(alertID string) (Plan, bool) {
	p, ok := plans[alertID]
	return p, ok
}

// stopper is satisfied by *time.Timer.
type stopper interface {
	Stop() bool
}

const DefaultFollowUpDelay = 5 * time.Second
