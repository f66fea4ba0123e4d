package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

func newRule(rt models.RuleType, severity string, logic rules.Logic) *rules.Rule {
	return &rules.Rule{
		ID:       uuid.New(),
		Name:     "test rule",
		Type:     rt,
		Severity: severity,
		Enabled:  true,
		Logic:    &logic,
	}
}

func transactionInput(fields map[string]interface{}) *engine.Input {
	id := uuid.New()
	return &engine.Input{
		Subject: models.TransactionSubject(id, fields),
		Context: models.EvaluationContext{
			ActorID:     uuid.New(),
			WorkspaceID: uuid.New(),
			Timestamp:   time.Now(),
		},
	}
}

func TestThresholdEvaluator(t *testing.T) {
	ev := engine.NewThresholdEvaluator()
	rule := newRule(models.RuleTypeThreshold, "high", rules.Logic{
		Threshold: &rules.ThresholdLogic{Field: "amount", Operator: ">", Threshold: 10000},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{"amount": 15000}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, models.SeverityHigh, out.Severity)
	assert.Equal(t, float64(15000), out.Evidence["value"])

	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{"amount": 10000}))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestThresholdEvaluatorOperators(t *testing.T) {
	cases := []struct {
		operator string
		value    float64
		want     bool
	}{
		{">", 11, true},
		{">", 10, false},
		{">=", 10, true},
		{"<", 9, true},
		{"<", 10, false},
		{"<=", 10, true},
		{"=", 10, true},
		{"=", 11, false},
		{"!=", 11, true},
		{"!=", 10, false},
	}

	ev := engine.NewThresholdEvaluator()
	for _, tc := range cases {
		rule := newRule(models.RuleTypeThreshold, "medium", rules.Logic{
			Threshold: &rules.ThresholdLogic{Field: "amount", Operator: tc.operator, Threshold: 10},
		})
		out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{"amount": tc.value}))
		require.NoError(t, err)
		assert.Equal(t, tc.want, out.Matched, "operator %s value %v", tc.operator, tc.value)
	}
}

func TestThresholdEvaluatorMissingField(t *testing.T) {
	ev := engine.NewThresholdEvaluator()
	rule := newRule(models.RuleTypeThreshold, "high", rules.Logic{
		Threshold: &rules.ThresholdLogic{Field: "amount", Operator: ">", Threshold: 100},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{"currency": "USD"}))
	require.NoError(t, err)
	assert.False(t, out.Matched)

	// Non-numeric field value is a non-match, not an error.
	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{"amount": "not-a-number"}))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestThresholdEvaluatorNestedField(t *testing.T) {
	ev := engine.NewThresholdEvaluator()
	rule := newRule(models.RuleTypeThreshold, "medium", rules.Logic{
		Threshold: &rules.ThresholdLogic{Field: "details.amount", Operator: ">=", Threshold: 500},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"details": map[string]interface{}{"amount": 500},
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
}

func TestPatternEvaluatorFirstMatchWins(t *testing.T) {
	ev := engine.NewPatternEvaluator()
	rule := newRule(models.RuleTypePattern, "medium", rules.Logic{
		Pattern: &rules.PatternLogic{Patterns: []rules.NamedPattern{
			{Name: "offshore-wire", Conditions: map[string]interface{}{"type": "wire", "destination": "offshore"}},
			{Name: "any-wire", Conditions: map[string]interface{}{"type": "wire"}},
		}},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"type": "wire", "destination": "offshore",
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, "offshore-wire", out.Evidence["pattern"])

	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"type": "wire", "destination": "domestic",
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, "any-wire", out.Evidence["pattern"])

	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"type": "card",
	}))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestPatternEvaluatorPartialConditionsDoNotMatch(t *testing.T) {
	ev := engine.NewPatternEvaluator()
	rule := newRule(models.RuleTypePattern, "medium", rules.Logic{
		Pattern: &rules.PatternLogic{Patterns: []rules.NamedPattern{
			{Name: "both", Conditions: map[string]interface{}{"type": "wire", "currency": "EUR"}},
		}},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"type": "wire", "currency": "USD",
	}))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestPatternEvaluatorActivityType(t *testing.T) {
	ev := engine.NewPatternEvaluator()
	rule := newRule(models.RuleTypePattern, "low", rules.Logic{
		Pattern: &rules.PatternLogic{ActivityType: "password_reset"},
	})

	userID := uuid.New()
	in := &engine.Input{
		Subject: models.ActivitySubject(userID, "password_reset"),
		Context: models.EvaluationContext{ActorID: userID, WorkspaceID: uuid.New(), Timestamp: time.Now()},
	}
	out, err := ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.True(t, out.Matched)

	in.Subject = models.ActivitySubject(userID, "login")
	out, err = ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestKeywordEvaluatorSeverityIsMaxAcrossEntries(t *testing.T) {
	ev := engine.NewKeywordEvaluator()
	rule := newRule(models.RuleTypeKeyword, "low", rules.Logic{
		Keyword: &rules.KeywordLogic{Entries: []rules.KeywordEntry{
			{Terms: []string{"wire fraud"}, Severity: "critical"},
			{Terms: []string{"account number"}, Severity: "medium"},
			{Terms: []string{"unrelated"}, Severity: "high"},
		}},
	})

	in := transactionInput(nil)
	in.NormalizedText = "please describe the wire fraud scheme and share your account number"

	out, err := ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, models.SeverityCritical, out.Severity)

	keywords, ok := out.Evidence["keywords"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, keywords, 2)
}

func TestKeywordEvaluatorCaseInsensitive(t *testing.T) {
	ev := engine.NewKeywordEvaluator()
	rule := newRule(models.RuleTypeKeyword, "medium", rules.Logic{
		Keyword: &rules.KeywordLogic{Entries: []rules.KeywordEntry{
			{Terms: []string{"Insider Trading"}},
		}},
	})

	in := transactionInput(nil)
	in.NormalizedText = "tips on insider trading strategies"

	out, err := ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.True(t, out.Matched)
	// Entry without its own severity inherits the rule baseline.
	assert.Equal(t, models.SeverityMedium, out.Severity)
}

func TestKeywordEvaluatorEmptyText(t *testing.T) {
	ev := engine.NewKeywordEvaluator()
	rule := newRule(models.RuleTypeKeyword, "medium", rules.Logic{
		Keyword: &rules.KeywordLogic{Entries: []rules.KeywordEntry{{Terms: []string{"anything"}}}},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(nil))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestCombinationEvaluatorMatchThreshold(t *testing.T) {
	ev := engine.NewCombinationEvaluator()
	logic := rules.Logic{
		Combination: &rules.CombinationLogic{
			MatchThreshold: 2,
			Conditions: []rules.SubCondition{
				{Kind: "threshold", Field: "amount", Operator: ">", Threshold: 1000},
				{Kind: "equality", Field: "currency", Value: "USD"},
				{Kind: "equality", Field: "type", Value: "withdrawal"},
			},
		},
	}
	rule := newRule(models.RuleTypeCombination, "high", logic)

	// Two of three hold.
	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"amount": 5000, "currency": "USD", "type": "deposit",
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, models.SeverityHigh, out.Severity)

	// Only one holds.
	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"amount": 500, "currency": "USD", "type": "deposit",
	}))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestCombinationEvaluatorZeroThresholdRequiresAll(t *testing.T) {
	ev := engine.NewCombinationEvaluator()
	rule := newRule(models.RuleTypeCombination, "medium", rules.Logic{
		Combination: &rules.CombinationLogic{
			Conditions: []rules.SubCondition{
				{Kind: "threshold", Field: "amount", Operator: ">", Threshold: 100},
				{Kind: "equality", Field: "currency", Value: "EUR"},
			},
		},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"amount": 200, "currency": "USD",
	}))
	require.NoError(t, err)
	assert.False(t, out.Matched)

	out, err = ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"amount": 200, "currency": "EUR",
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
}

func TestCombinationEvaluatorSeverityOverride(t *testing.T) {
	ev := engine.NewCombinationEvaluator()
	rule := newRule(models.RuleTypeCombination, "low", rules.Logic{
		Combination: &rules.CombinationLogic{
			MatchThreshold: 1,
			Conditions: []rules.SubCondition{
				{Kind: "threshold", Field: "amount", Operator: ">", Threshold: 1000, Severity: "critical"},
				{Kind: "equality", Field: "currency", Value: "USD", Severity: "medium"},
			},
		},
	})

	out, err := ev.Evaluate(context.Background(), rule, transactionInput(map[string]interface{}{
		"amount": 5000, "currency": "USD",
	}))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, models.SeverityCritical, out.Severity)
}

func TestCombinationEvaluatorBusinessHours(t *testing.T) {
	ev := engine.NewCombinationEvaluator()
	rule := newRule(models.RuleTypeCombination, "medium", rules.Logic{
		Combination: &rules.CombinationLogic{
			Conditions: []rules.SubCondition{{Kind: "outside_business_hours"}},
		},
	})

	in := transactionInput(map[string]interface{}{})
	in.Context.Timestamp = time.Date(2026, 3, 2, 3, 0, 0, 0, time.Local)
	out, err := ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.True(t, out.Matched)

	in.Context.Timestamp = time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local)
	out, err = ev.Evaluate(context.Background(), rule, in)
	require.NoError(t, err)
	assert.False(t, out.Matched)
}
