package engine

import (
	"context"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// PatternEvaluator matches named patterns of field equality conditions.
// A pattern matches iff every one of its conditions equals the subject's
// corresponding field; the first matching pattern wins.
type PatternEvaluator struct{}

func NewPatternEvaluator() *PatternEvaluator { return &PatternEvaluator{} }

func (e *PatternEvaluator) Type() models.RuleType { return models.RuleTypePattern }

func (e *PatternEvaluator) Evaluate(_ context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Pattern

	for _, pattern := range cfg.Patterns {
		matchedValues := make(map[string]interface{}, len(pattern.Conditions))
		allMatch := true
		for field, expected := range pattern.Conditions {
			actual, ok := LookupField(in.Subject.Fields, field)
			if !ok || !equalValues(actual, expected) {
				allMatch = false
				break
			}
			matchedValues[field] = actual
		}
		if allMatch {
			return &Outcome{
				Matched:  true,
				Severity: rule.BaselineSeverity(),
				Evidence: map[string]interface{}{
					"pattern":        pattern.Name,
					"matched_values": matchedValues,
				},
			}, nil
		}
	}

	// Simpler activity-type equality form for user-behavior subjects.
	if cfg.ActivityType != "" {
		actual, ok := LookupField(in.Subject.Fields, "activityType")
		if ok && equalValues(actual, cfg.ActivityType) {
			return &Outcome{
				Matched:  true,
				Severity: rule.BaselineSeverity(),
				Evidence: map[string]interface{}{
					"activity_type": cfg.ActivityType,
				},
			}, nil
		}
	}

	return &Outcome{Matched: false}, nil
}
