package ruleset

import "github.com/qiniu/venueops/internal/alerting/model"

const (
	RuleStaleFeed   = "stale_feed"
	RuleHighLatency = "high_latency"
	RuleHighRejects = "high_rejects"
	RuleRiskBreach  = "risk_breach"
)

// registry maps a rule id to the value it watches.
var registry = map[string]ValueFunc{
	RuleStaleFeed:   MaxStalenessMs,
	RuleHighLatency: func(in Input) float64 { return in.Snapshot.LatencyP95 },
	RuleHighRejects: func(in Input) float64 { return in.Snapshot.RejectRate },
	RuleRiskBreach:  func(in Input) float64 { return in.Snapshot.PositionExposure },
}

// MaxStalenessMs is the largest now - LastHeartbeat across feeds, in milliseconds.
// No feeds means nothing is stale.
func MaxStalenessMs(in Input) float64 {
	var worst float64
	for _, f := range in.Feeds {
		if d := float64(in.Now.Sub(f.LastHeartbeat).Milliseconds()); d > worst {
			worst = d
		}
	}
	return worst
}

func ptr(v float64) *float64 { return &v }

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []AlertRule {
	return []AlertRule{
		{
			ID:            RuleStaleFeed,
			Name:          "Stale Market Data Feed",
			Severity:      model.SeverityCritical,
			ConditionType: model.ConditionStale,
			Op:            ">",
			Threshold:     ptr(3000),
			Message:       "Market data feed has not sent heartbeat in over 3 seconds",
			value:         registry[RuleStaleFeed],
		},
		{
			ID:            RuleHighLatency,
			Name:          "High Order Latency",
			Severity:      model.SeverityWarning,
			ConditionType: model.ConditionThreshold,
			Op:            ">",
			Threshold:     ptr(100),
			Message:       "Order latency P95 exceeds 100ms threshold",
			value:         registry[RuleHighLatency],
		},
		{
			ID:            RuleHighRejects,
			Name:          "High Reject Rate",
			Severity:      model.SeverityWarning,
			ConditionType: model.ConditionRate,
			Op:            ">",
			Threshold:     ptr(5),
			Message:       "Order reject rate exceeds 5% baseline",
			value:         registry[RuleHighRejects],
		},
		{
			ID:            RuleRiskBreach,
			Name:          "Risk Limit Breach",
			Severity:      model.SeverityCritical,
			ConditionType: model.ConditionThreshold,
			Op:            ">",
			Threshold:     ptr(1_000_000),
			Message:       "Position exposure exceeds $1M risk limit",
			value:         registry[RuleRiskBreach],
		},
	}
}
