// Package engine implements the rule evaluation pipeline: per-type
// evaluators, the parallel fan-out, result aggregation and the action policy.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// Evaluator is the strategy interface implemented once per rule type.
// Implementations must be side-effect-free (the velocity evaluator's windowed
// read excepted) and must respect ctx deadlines.
type Evaluator interface {
	// Type returns the rule type this evaluator handles.
	Type() models.RuleType

	// Evaluate runs one rule against the input. A nil outcome or an error
	// is treated as "no match" for that rule only.
	Evaluate(ctx context.Context, rule *rules.Rule, in *Input) (*Outcome, error)
}

// Input is the immutable per-pass evaluation input shared by all rules.
type Input struct {
	Subject models.Subject
	Context models.EvaluationContext

	// NormalizedText is the sanitized, lowercased subject text prepared
	// once per pass for the keyword and semantic evaluators.
	NormalizedText string
}

// Outcome is the result of evaluating a single rule.
type Outcome struct {
	Matched  bool
	Severity models.Severity
	Evidence map[string]interface{}
}

// RuleOutcome pairs a rule with its evaluation outcome inside one pass.
type RuleOutcome struct {
	RuleID   uuid.UUID
	RuleName string
	RuleType models.RuleType
	Matched  bool
	Errored  bool
	Severity models.Severity
	Evidence map[string]interface{}
}

// LookupField resolves a dotted path through nested map structures.
// A missing segment returns ok=false; that is never an error condition.
func LookupField(fields map[string]interface{}, path string) (interface{}, bool) {
	if fields == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = fields
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// toFloat64 coerces common numeric representations. Strings are parsed;
// anything else fails the coercion.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// compareNumeric applies one of the supported comparison operators.
func compareNumeric(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "=":
		return value == threshold
	case "!=":
		return value != threshold
	}
	return false
}

// equalValues compares a subject value against an expected value, numerically
// when both sides coerce, falling back to string equality.
func equalValues(actual, expected interface{}) bool {
	if af, ok := toFloat64(actual); ok {
		if ef, ok := toFloat64(expected); ok {
			return af == ef
		}
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}
