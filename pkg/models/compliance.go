// Package models contains the shared domain types for the compliance engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the ordinal scale used for aggregation and policy comparisons.
// The ordering none < low < medium < high < critical is relied on throughout
// the engine; never compare severities by their string form.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "none"
}

// ParseSeverity maps a severity name to its ordinal. Unknown values map to
// SeverityNone so a mistyped rule config degrades instead of escalating.
func ParseSeverity(s string) Severity {
	switch s {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityNone
	}
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' {
		str = str[1 : len(str)-1]
	}
	*s = ParseSeverity(str)
	return nil
}

// RuleCategory scopes rules to one of the evaluation surfaces.
type RuleCategory string

const (
	CategoryTransaction  RuleCategory = "transaction"
	CategoryUserBehavior RuleCategory = "user_behavior"
	CategoryLLMInput     RuleCategory = "llm_input"
	CategoryLLMOutput    RuleCategory = "llm_output"
)

// RuleType selects the evaluator strategy for a rule.
type RuleType string

const (
	RuleTypeThreshold   RuleType = "threshold"
	RuleTypePattern     RuleType = "pattern"
	RuleTypeVelocity    RuleType = "velocity"
	RuleTypeCombination RuleType = "combination"
	RuleTypeKeyword     RuleType = "keyword"
	RuleTypeSemantic    RuleType = "semantic"
)

// RuleScope controls rule visibility across workspaces.
type RuleScope string

const (
	ScopeSystem    RuleScope = "system"
	ScopeWorkspace RuleScope = "workspace"
)

// Action is the enforcement decision on the LLM-validation path.
type Action string

const (
	ActionNone    Action = "none"
	ActionFlagged Action = "flagged"
	ActionBlocked Action = "blocked"
)

// LimitDecision is the outcome of a trading-limit check.
type LimitDecision string

const (
	LimitApproved         LimitDecision = "approved"
	LimitRequiresApproval LimitDecision = "requires_approval"
	LimitExceeded         LimitDecision = "limit_exceeded"
)

// SubjectKind identifies the shape of an evaluation subject.
type SubjectKind string

const (
	SubjectTransaction SubjectKind = "transaction"
	SubjectActivity    SubjectKind = "activity"
	SubjectText        SubjectKind = "text"
)

// Subject is what a single evaluation pass inspects: a transaction snapshot,
// a user-activity descriptor, or raw text. Fields carries the structured
// snapshot for dotted-path lookups; Text carries the raw content for the
// keyword and semantic evaluators.
type Subject struct {
	Kind   SubjectKind            `json:"kind"`
	ID     *uuid.UUID             `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
	Text   string                 `json:"text,omitempty"`
}

// TransactionSubject builds a Subject from a transaction snapshot.
func TransactionSubject(txID uuid.UUID, snapshot map[string]interface{}) Subject {
	return Subject{Kind: SubjectTransaction, ID: &txID, Fields: snapshot}
}

// ActivitySubject builds a Subject from a {userID, activityType} pair.
func ActivitySubject(userID uuid.UUID, activityType string) Subject {
	return Subject{
		Kind: SubjectActivity,
		Fields: map[string]interface{}{
			"userId":       userID.String(),
			"activityType": activityType,
		},
	}
}

// TextSubject builds a Subject from raw text.
func TextSubject(text string) Subject {
	return Subject{Kind: SubjectText, Text: text}
}

// EvaluationContext carries the actor and correlation identifiers for one
// evaluation pass. It is immutable for the duration of the pass.
type EvaluationContext struct {
	ActorID     uuid.UUID  `json:"actor_id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// At returns the context timestamp, defaulting to now when unset.
func (c EvaluationContext) At() time.Time {
	if c.Timestamp.IsZero() {
		return time.Now()
	}
	return c.Timestamp
}

// FindingStatus is the lifecycle state of a persisted finding.
type FindingStatus string

const (
	FindingStatusNew           FindingStatus = "new"
	FindingStatusInvestigating FindingStatus = "investigating"
	FindingStatusResolved      FindingStatus = "resolved"
	FindingStatusFalsePositive FindingStatus = "false_positive"
)

// Terminal reports whether the status permits no further transitions.
func (s FindingStatus) Terminal() bool {
	return s == FindingStatusResolved || s == FindingStatusFalsePositive
}
