// Package rules defines compliance rule definitions, their typed logic
// configuration and the store used to resolve applicable rules.
package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearlane/compliance-engine/pkg/models"
)

// Rule is a persisted compliance rule. The engine only ever reads rules;
// authoring happens through the admin surface.
type Rule struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string              `json:"name" gorm:"not null"`
	Description string              `json:"description"`
	Category    models.RuleCategory `json:"category" gorm:"not null;index"`
	Type        models.RuleType     `json:"rule_type" gorm:"column:rule_type;not null"`
	Severity    string              `json:"severity" gorm:"not null"`
	Scope       models.RuleScope    `json:"scope" gorm:"not null;index"`
	WorkspaceID *uuid.UUID          `json:"workspace_id,omitempty" gorm:"type:uuid;index"`
	Enabled     bool                `json:"enabled" gorm:"index"`
	LogicJSON   string              `json:"-" gorm:"column:logic;type:jsonb"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	// Logic is the parsed, validated form of LogicJSON. Populated by the
	// store on load; never persisted directly.
	Logic *Logic `json:"logic" gorm:"-"`
}

func (Rule) TableName() string { return "compliance_rules" }

// BaselineSeverity returns the rule's configured severity ordinal.
func (r *Rule) BaselineSeverity() models.Severity {
	return models.ParseSeverity(r.Severity)
}

// ParseLogic decodes and validates LogicJSON against the rule type.
func (r *Rule) ParseLogic() error {
	var logic Logic
	if err := json.Unmarshal([]byte(r.LogicJSON), &logic); err != nil {
		return fmt.Errorf("rule %s: malformed logic: %w", r.ID, err)
	}
	if err := logic.Validate(r.Type); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Logic = &logic
	return nil
}

// Logic holds the type-specific rule configuration. Exactly one section is
// populated, selected by the rule's type.
type Logic struct {
	Threshold   *ThresholdLogic   `json:"threshold,omitempty"`
	Pattern     *PatternLogic     `json:"pattern,omitempty"`
	Velocity    *VelocityLogic    `json:"velocity,omitempty"`
	Combination *CombinationLogic `json:"combination,omitempty"`
	Keyword     *KeywordLogic     `json:"keyword,omitempty"`
	Semantic    *SemanticLogic    `json:"semantic,omitempty"`
}

// ThresholdLogic compares a numeric subject field against a bound.
type ThresholdLogic struct {
	Field     string  `json:"field"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// NamedPattern is a set of field equality conditions; all must hold.
type NamedPattern struct {
	Name       string                 `json:"name"`
	Conditions map[string]interface{} `json:"conditions"`
}

// PatternLogic matches the first named pattern whose conditions all equal the
// subject's fields. ActivityType is the simpler equality form used for
// user-behavior subjects.
type PatternLogic struct {
	Patterns     []NamedPattern `json:"patterns,omitempty"`
	ActivityType string         `json:"activity_type,omitempty"`
}

// VelocityLogic matches when the actor's prior occurrence count within the
// trailing window reaches MaxCount.
type VelocityLogic struct {
	MaxCount      int    `json:"max_count"`
	WindowMinutes int    `json:"window_minutes,omitempty"`
	ActivityType  string `json:"activity_type,omitempty"`
}

// Window returns the configured trailing window, defaulting to 60 minutes.
func (v *VelocityLogic) Window() time.Duration {
	if v.WindowMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(v.WindowMinutes) * time.Minute
}

// SubCondition is one heterogeneous condition inside a combination rule.
type SubCondition struct {
	// Kind is one of "threshold", "equality", "outside_business_hours".
	Kind      string      `json:"kind"`
	Field     string      `json:"field,omitempty"`
	Operator  string      `json:"operator,omitempty"`
	Threshold float64     `json:"threshold,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	// StartHour/EndHour bound the business day for the
	// outside_business_hours kind. Zero values fall back to 9..17.
	StartHour int `json:"start_hour,omitempty"`
	EndHour   int `json:"end_hour,omitempty"`
	// Severity optionally overrides the rule baseline when this
	// sub-condition contributes to a match.
	Severity string `json:"severity,omitempty"`
}

// CombinationLogic matches when at least MatchThreshold sub-conditions hold.
// A zero MatchThreshold requires all of them.
type CombinationLogic struct {
	Conditions     []SubCondition `json:"conditions"`
	MatchThreshold int            `json:"match_threshold,omitempty"`
}

// RequiredMatches resolves the effective match threshold.
func (c *CombinationLogic) RequiredMatches() int {
	if c.MatchThreshold <= 0 || c.MatchThreshold > len(c.Conditions) {
		return len(c.Conditions)
	}
	return c.MatchThreshold
}

// KeywordEntry is one independent keyword check with its own severity.
type KeywordEntry struct {
	Terms    []string `json:"terms"`
	Severity string   `json:"severity,omitempty"`
}

// KeywordLogic matches case-insensitive literal terms against subject text.
type KeywordLogic struct {
	Entries []KeywordEntry `json:"entries"`
}

// SemanticLogic matches by embedding similarity against the rule's reference
// embedding, falling back to the literal patterns when the provider is down.
// BlockSeverity/FlagSeverity feed the action policy's effective thresholds.
type SemanticLogic struct {
	Patterns            []string `json:"patterns,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	BlockSeverity       string   `json:"block_severity,omitempty"`
	FlagSeverity        string   `json:"flag_severity,omitempty"`
}

// EffectiveThreshold resolves the similarity threshold, defaulting to 0.75.
func (s *SemanticLogic) EffectiveThreshold() float64 {
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return 0.75
	}
	return s.SimilarityThreshold
}

var validOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "=": true, "!=": true,
}

// ValidOperator reports whether op is a supported comparison operator.
func ValidOperator(op string) bool { return validOperators[op] }

// Validate checks the logic document against the rule type. Malformed rules
// are rejected here, at load time, so evaluators never see them.
func (l *Logic) Validate(rt models.RuleType) error {
	switch rt {
	case models.RuleTypeThreshold:
		if l.Threshold == nil {
			return fmt.Errorf("threshold config required for threshold rules")
		}
		if l.Threshold.Field == "" {
			return fmt.Errorf("threshold field is required")
		}
		if !ValidOperator(l.Threshold.Operator) {
			return fmt.Errorf("invalid threshold operator: %q", l.Threshold.Operator)
		}
	case models.RuleTypePattern:
		if l.Pattern == nil {
			return fmt.Errorf("pattern config required for pattern rules")
		}
		if len(l.Pattern.Patterns) == 0 && l.Pattern.ActivityType == "" {
			return fmt.Errorf("pattern rules require patterns or an activity type")
		}
		for i, p := range l.Pattern.Patterns {
			if len(p.Conditions) == 0 {
				return fmt.Errorf("pattern %d (%s): at least one condition is required", i, p.Name)
			}
		}
	case models.RuleTypeVelocity:
		if l.Velocity == nil {
			return fmt.Errorf("velocity config required for velocity rules")
		}
		if l.Velocity.MaxCount <= 0 {
			return fmt.Errorf("velocity max_count must be positive")
		}
	case models.RuleTypeCombination:
		if l.Combination == nil {
			return fmt.Errorf("combination config required for combination rules")
		}
		if len(l.Combination.Conditions) == 0 {
			return fmt.Errorf("combination rules require at least one sub-condition")
		}
		for i, c := range l.Combination.Conditions {
			switch c.Kind {
			case "threshold":
				if c.Field == "" {
					return fmt.Errorf("sub-condition %d: field is required", i)
				}
				if !ValidOperator(c.Operator) {
					return fmt.Errorf("sub-condition %d: invalid operator %q", i, c.Operator)
				}
			case "equality":
				if c.Field == "" {
					return fmt.Errorf("sub-condition %d: field is required", i)
				}
			case "outside_business_hours":
				// hour bounds are optional
			default:
				return fmt.Errorf("sub-condition %d: unknown kind %q", i, c.Kind)
			}
		}
	case models.RuleTypeKeyword:
		if l.Keyword == nil {
			return fmt.Errorf("keyword config required for keyword rules")
		}
		if len(l.Keyword.Entries) == 0 {
			return fmt.Errorf("keyword rules require at least one entry")
		}
		for i, e := range l.Keyword.Entries {
			if len(e.Terms) == 0 {
				return fmt.Errorf("keyword entry %d: at least one term is required", i)
			}
		}
	case models.RuleTypeSemantic:
		if l.Semantic == nil {
			return fmt.Errorf("semantic config required for semantic rules")
		}
		if t := l.Semantic.SimilarityThreshold; t < 0 || t > 1 {
			return fmt.Errorf("semantic similarity_threshold must be within [0,1]")
		}
	default:
		return fmt.Errorf("unknown rule type: %s", rt)
	}
	return nil
}
