package ruleset

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Manager owns the effective rule set: defaults, optional file overrides and
// threshold publication.
type Manager struct {
	sync  ThresholdSync
	rules []AlertRule
}

func NewManager(sync ThresholdSync) *Manager {
	return &Manager{sync: sync}
}

// LoadRules builds the rule set from the defaults, applies overrides from
// overrideFile when set, validates the result and publishes thresholds.
// Any *model.ConfigurationError returned is fatal for startup.
func (m *Manager) LoadRules(ctx context.Context, overrideFile string) error {
	rules := DefaultRules()
	if p := strings.TrimSpace(overrideFile); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read rule overrides: %w", err)
		}
		var f OverrideFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return &model.ConfigurationError{Rule: p, Message: "parse overrides: " + err.Error()}
		}
		if rules, err = ApplyOverrides(rules, f.Rules); err != nil {
			return err
		}
	}
	return m.SetRules(ctx, rules)
}

// SetRules validates rules and makes them the effective set.
func (m *Manager) SetRules(ctx context.Context, rules []AlertRule) error {
	for i := range rules {
		if err := Validate(&rules[i]); err != nil {
			return err
		}
	}
	if m.sync != nil {
		for i := range rules {
			if err := m.sync.SyncThreshold(ctx, &rules[i]); err != nil {
				log.Warn().Err(err).Str("rule", rules[i].ID).Msg("threshold sync failed")
			}
		}
	}
	m.rules = rules
	for _, r := range rules {
		log.Info().Str("rule", r.ID).Str("severity", string(r.Severity)).Str("op", r.Op).Float64("threshold", *r.Threshold).Msg("alert rule loaded")
	}
	return nil
}

// Rules returns a copy of the effective rules in evaluation order.
func (m *Manager) Rules() []AlertRule {
	out := make([]AlertRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// ApplyOverrides returns rules with overrides merged in by id. Unknown ids are rejected.
func ApplyOverrides(rules []AlertRule, overrides []RuleOverride) ([]AlertRule, error) {
	out := make([]AlertRule, len(rules))
	copy(out, rules)
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.ID] = i
	}
	for _, o := range overrides {
		i, ok := index[o.ID]
		if !ok {
			return nil, &model.ConfigurationError{Rule: o.ID, Message: "unknown rule id"}
		}
		r := &out[i]
		if o.Name != "" {
			r.Name = o.Name
		}
		if o.Severity != "" {
			r.Severity = model.Severity(o.Severity)
		}
		if o.Op != "" {
			r.Op = o.Op
		}
		if o.Threshold != nil {
			th := *o.Threshold
			r.Threshold = &th
		}
		if o.Message != "" {
			r.Message = o.Message
		}
	}
	return out, nil
}

// Validate checks a rule definition.
func Validate(r *AlertRule) error {
	if r == nil || r.ID == "" {
		return &model.ConfigurationError{Message: "missing rule id"}
	}
	if r.value == nil {
		fn, ok := registry[r.ID]
		if !ok {
			return &model.ConfigurationError{Rule: r.ID, Message: "no evaluator registered"}
		}
		r.value = fn
	}
	if !r.Severity.Valid() {
		return &model.ConfigurationError{Rule: r.ID, Field: "severity", Message: fmt.Sprintf("invalid value %q", r.Severity)}
	}
	if !r.ConditionType.Valid() {
		return &model.ConfigurationError{Rule: r.ID, Field: "condition_type", Message: fmt.Sprintf("invalid value %q", r.ConditionType)}
	}
	switch r.Op {
	case ">", ">=", "<", "<=":
	default:
		return &model.ConfigurationError{Rule: r.ID, Field: "op", Message: fmt.Sprintf("invalid operator %q", r.Op)}
	}
	if r.Threshold == nil {
		return &model.ConfigurationError{Rule: r.ID, Field: "threshold", Message: "required for " + string(r.ConditionType) + " rules"}
	}
	if !isFinite(*r.Threshold) {
		return &model.ConfigurationError{Rule: r.ID, Field: "threshold", Message: "must be finite"}
	}
	return nil
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
