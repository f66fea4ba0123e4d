package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

func TestEffectiveThresholdsDefaults(t *testing.T) {
	block, flag := engine.EffectiveThresholds(nil)
	assert.Equal(t, models.SeverityCritical, block)
	assert.Equal(t, models.SeverityHigh, flag)
}

func TestEffectiveThresholdsLowestConfiguredWins(t *testing.T) {
	strict := newRule(models.RuleTypeSemantic, "high", rules.Logic{
		Semantic: &rules.SemanticLogic{BlockSeverity: "high", FlagSeverity: "medium"},
	})
	lenient := newRule(models.RuleTypeSemantic, "high", rules.Logic{
		Semantic: &rules.SemanticLogic{BlockSeverity: "critical", FlagSeverity: "high"},
	})
	unrelated := newRule(models.RuleTypeThreshold, "low", rules.Logic{
		Threshold: &rules.ThresholdLogic{Field: "amount", Operator: ">", Threshold: 1},
	})

	block, flag := engine.EffectiveThresholds([]*rules.Rule{lenient, strict, unrelated})
	assert.Equal(t, models.SeverityHigh, block)
	assert.Equal(t, models.SeverityMedium, flag)
}

func TestDecideAction(t *testing.T) {
	cases := []struct {
		aggregate models.Severity
		want      models.Action
	}{
		{models.SeverityNone, models.ActionNone},
		{models.SeverityLow, models.ActionNone},
		{models.SeverityMedium, models.ActionNone},
		{models.SeverityHigh, models.ActionFlagged},
		{models.SeverityCritical, models.ActionBlocked},
	}
	for _, tc := range cases {
		got := engine.DecideAction(tc.aggregate, models.SeverityCritical, models.SeverityHigh)
		assert.Equal(t, tc.want, got, "aggregate %s", tc.aggregate)
	}
}

func TestDecideActionCustomThresholds(t *testing.T) {
	// A workspace that blocks at high and flags at medium.
	assert.Equal(t, models.ActionBlocked,
		engine.DecideAction(models.SeverityHigh, models.SeverityHigh, models.SeverityMedium))
	assert.Equal(t, models.ActionFlagged,
		engine.DecideAction(models.SeverityMedium, models.SeverityHigh, models.SeverityMedium))
	assert.Equal(t, models.ActionNone,
		engine.DecideAction(models.SeverityLow, models.SeverityHigh, models.SeverityMedium))
}
