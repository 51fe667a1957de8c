package ruleset

import (
	"context"
	"time"

	"github.com/qiniu/venueops/internal/alerting/model"
)

// Input is everything a rule may look at during one evaluation cycle.
type Input struct {
	Snapshot model.KPISnapshot
	Feeds    []model.FeedHealth
	Now      time.Time
}

// ValueFunc extracts the number a rule compares against its threshold. The same
// number is reported as the alert's current value.
type ValueFunc func(in Input) float64

// AlertRule defines one alert condition. ID doubles as the alert id: at most one
// live alert exists per rule.
type AlertRule struct {
	ID            string              // stable identifier, e.g. stale_feed
	Name          string              // human readable title
	Severity      model.Severity      // critical | warning | info
	ConditionType model.ConditionType // threshold | stale | rate
	Op            string              // comparison operator: one of >, >=, <, <=
	Threshold     *float64            // required; nil is a configuration error
	Message       string              // alert text

	value ValueFunc
}

// Evaluate reports whether the rule fires for in and the value it compared.
func (r *AlertRule) Evaluate(in Input) (bool, float64) {
	if r.value == nil || r.Threshold == nil {
		return false, 0
	}
	v := r.value(in)
	return compare(v, r.Op, *r.Threshold), v
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	default:
		return v > threshold
	}
}

// RuleOverride is one entry of the YAML override file. Zero fields keep the default.
type RuleOverride struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Severity  string   `yaml:"severity"`
	Op        string   `yaml:"op"`
	Threshold *float64 `yaml:"threshold"`
	Message   string   `yaml:"message"`
}

type OverrideFile struct {
	Rules []RuleOverride `yaml:"rules"`
}

// ThresholdSync publishes the effective rule thresholds somewhere observable.
type ThresholdSync interface {
	SyncThreshold(ctx context.Context, r *AlertRule) error
}
