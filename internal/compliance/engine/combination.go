package engine

import (
	"context"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

const (
	defaultBusinessStartHour = 9
	defaultBusinessEndHour   = 17
)

// CombinationEvaluator evaluates an ordered list of heterogeneous
// sub-conditions and matches when at least the configured number hold.
type CombinationEvaluator struct{}

func NewCombinationEvaluator() *CombinationEvaluator { return &CombinationEvaluator{} }

func (e *CombinationEvaluator) Type() models.RuleType { return models.RuleTypeCombination }

func (e *CombinationEvaluator) Evaluate(_ context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Combination

	severity := models.SeverityNone
	var matched []map[string]interface{}

	for i, cond := range cfg.Conditions {
		ok, detail := evalSubCondition(cond, in)
		if !ok {
			continue
		}
		detail["index"] = i
		matched = append(matched, detail)
		if override := models.ParseSeverity(cond.Severity); override != models.SeverityNone {
			severity = models.MaxSeverity(severity, override)
		}
	}

	if len(matched) < cfg.RequiredMatches() {
		return &Outcome{Matched: false}, nil
	}
	if severity == models.SeverityNone {
		severity = rule.BaselineSeverity()
	}

	return &Outcome{
		Matched:  true,
		Severity: severity,
		Evidence: map[string]interface{}{
			"matched_conditions": matched,
			"match_threshold":    cfg.RequiredMatches(),
		},
	}, nil
}

func evalSubCondition(cond rules.SubCondition, in *Input) (bool, map[string]interface{}) {
	switch cond.Kind {
	case "threshold":
		raw, ok := LookupField(in.Subject.Fields, cond.Field)
		if !ok {
			return false, nil
		}
		value, ok := toFloat64(raw)
		if !ok || !compareNumeric(value, cond.Operator, cond.Threshold) {
			return false, nil
		}
		return true, map[string]interface{}{
			"kind":      cond.Kind,
			"field":     cond.Field,
			"value":     value,
			"operator":  cond.Operator,
			"threshold": cond.Threshold,
		}

	case "equality":
		actual, ok := LookupField(in.Subject.Fields, cond.Field)
		if !ok || !equalValues(actual, cond.Value) {
			return false, nil
		}
		return true, map[string]interface{}{
			"kind":  cond.Kind,
			"field": cond.Field,
			"value": actual,
		}

	case "outside_business_hours":
		start, end := cond.StartHour, cond.EndHour
		if start == 0 && end == 0 {
			start, end = defaultBusinessStartHour, defaultBusinessEndHour
		}
		hour := in.Context.At().Hour()
		if hour >= start && hour < end {
			return false, nil
		}
		return true, map[string]interface{}{
			"kind":       cond.Kind,
			"hour":       hour,
			"start_hour": start,
			"end_hour":   end,
		}
	}
	return false, nil
}
