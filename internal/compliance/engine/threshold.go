package engine

import (
	"context"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// ThresholdEvaluator compares a named numeric subject field against the
// rule's configured bound. Missing fields and failed numeric coercion are
// non-matches, not errors.
type ThresholdEvaluator struct{}

func NewThresholdEvaluator() *ThresholdEvaluator { return &ThresholdEvaluator{} }

func (e *ThresholdEvaluator) Type() models.RuleType { return models.RuleTypeThreshold }

func (e *ThresholdEvaluator) Evaluate(_ context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Threshold

	raw, ok := LookupField(in.Subject.Fields, cfg.Field)
	if !ok {
		return &Outcome{Matched: false}, nil
	}
	value, ok := toFloat64(raw)
	if !ok {
		return &Outcome{Matched: false}, nil
	}
	if !compareNumeric(value, cfg.Operator, cfg.Threshold) {
		return &Outcome{Matched: false}, nil
	}

	return &Outcome{
		Matched:  true,
		Severity: rule.BaselineSeverity(),
		Evidence: map[string]interface{}{
			"field":     cfg.Field,
			"value":     value,
			"threshold": cfg.Threshold,
			"operator":  cfg.Operator,
		},
	}, nil
}
