package engine_test

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/pkg/models"
)

func TestAggregateNoMatchesPasses(t *testing.T) {
	outcomes := []engine.RuleOutcome{
		{RuleID: uuid.New(), Matched: false},
		{RuleID: uuid.New(), Matched: false},
	}
	result := engine.Aggregate(outcomes)
	assert.True(t, result.Passed)
	assert.Equal(t, models.SeverityNone, result.Severity)
	assert.Empty(t, result.RuleMatches)
}

func TestAggregateSeverityIsMax(t *testing.T) {
	outcomes := []engine.RuleOutcome{
		{RuleID: uuid.New(), Matched: true, Severity: models.SeverityLow},
		{RuleID: uuid.New(), Matched: true, Severity: models.SeverityCritical},
		{RuleID: uuid.New(), Matched: true, Severity: models.SeverityMedium},
	}
	result := engine.Aggregate(outcomes)
	assert.False(t, result.Passed)
	assert.Equal(t, models.SeverityCritical, result.Severity)
	assert.Len(t, result.RuleMatches, 3)
}

func TestAggregateOrderIndependence(t *testing.T) {
	outcomes := []engine.RuleOutcome{
		{RuleID: uuid.New(), RuleName: "a", Matched: true, Severity: models.SeverityLow,
			Evidence: map[string]interface{}{"k": "v1"}},
		{RuleID: uuid.New(), RuleName: "b", Matched: true, Severity: models.SeverityHigh,
			Evidence: map[string]interface{}{"k": "v2"}},
		{RuleID: uuid.New(), RuleName: "c", Matched: false},
		{RuleID: uuid.New(), RuleName: "d", Matched: true, Severity: models.SeverityMedium,
			Evidence: map[string]interface{}{"k": "v3"}},
	}

	baseline := engine.Aggregate(outcomes)
	for i := 0; i < 10; i++ {
		shuffled := make([]engine.RuleOutcome, len(outcomes))
		copy(shuffled, outcomes)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		result := engine.Aggregate(shuffled)
		assert.Equal(t, baseline, result)
	}
}

func TestAggregateDeduplicatesRuleIDs(t *testing.T) {
	id := uuid.New()
	outcomes := []engine.RuleOutcome{
		{RuleID: id, Matched: true, Severity: models.SeverityLow},
		{RuleID: id, Matched: true, Severity: models.SeverityLow},
	}
	result := engine.Aggregate(outcomes)
	assert.Len(t, result.RuleMatches, 1)
}

func TestAggregateErroredOutcomeSetsDegraded(t *testing.T) {
	outcomes := []engine.RuleOutcome{
		{RuleID: uuid.New(), Errored: true},
		{RuleID: uuid.New(), Matched: false},
	}
	result := engine.Aggregate(outcomes)
	assert.True(t, result.Passed)
	assert.True(t, result.Degraded)
}

func TestAggregateEvidenceCarriesRuleIdentity(t *testing.T) {
	id := uuid.New()
	outcomes := []engine.RuleOutcome{
		{RuleID: id, RuleName: "large-transfer", Matched: true, Severity: models.SeverityHigh,
			Evidence: map[string]interface{}{"value": 9000.0}},
	}
	result := engine.Aggregate(outcomes)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, id.String(), result.Evidence[0]["rule_id"])
	assert.Equal(t, "large-transfer", result.Evidence[0]["rule_name"])
	assert.Equal(t, 9000.0, result.Evidence[0]["value"])
}
