package models_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlane/compliance-engine/pkg/models"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, models.SeverityNone < models.SeverityLow)
	assert.True(t, models.SeverityLow < models.SeverityMedium)
	assert.True(t, models.SeverityMedium < models.SeverityHigh)
	assert.True(t, models.SeverityHigh < models.SeverityCritical)
}

func TestParseSeverityRoundTrip(t *testing.T) {
	for _, severity := range []models.Severity{
		models.SeverityNone,
		models.SeverityLow,
		models.SeverityMedium,
		models.SeverityHigh,
		models.SeverityCritical,
	} {
		assert.Equal(t, severity, models.ParseSeverity(severity.String()))
	}
}

func TestParseSeverityUnknownDegrades(t *testing.T) {
	assert.Equal(t, models.SeverityNone, models.ParseSeverity("catastrophic"))
	assert.Equal(t, models.SeverityNone, models.ParseSeverity(""))
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, models.MaxSeverity(models.SeverityLow, models.SeverityCritical))
	assert.Equal(t, models.SeverityHigh, models.MaxSeverity(models.SeverityHigh, models.SeverityMedium))
	assert.Equal(t, models.SeverityNone, models.MaxSeverity(models.SeverityNone, models.SeverityNone))
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, `"high"`, string(data))

	var severity models.Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &severity))
	assert.Equal(t, models.SeverityCritical, severity)
}

func TestFindingStatusTerminal(t *testing.T) {
	assert.False(t, models.FindingStatusNew.Terminal())
	assert.False(t, models.FindingStatusInvestigating.Terminal())
	assert.True(t, models.FindingStatusResolved.Terminal())
	assert.True(t, models.FindingStatusFalsePositive.Terminal())
}

func TestSubjectBuilders(t *testing.T) {
	txID := uuid.New()
	tx := models.TransactionSubject(txID, map[string]interface{}{"amount": 500})
	assert.Equal(t, models.SubjectTransaction, tx.Kind)
	require.NotNil(t, tx.ID)
	assert.Equal(t, txID, *tx.ID)
	assert.Equal(t, 500, tx.Fields["amount"])

	userID := uuid.New()
	activity := models.ActivitySubject(userID, "login")
	assert.Equal(t, models.SubjectActivity, activity.Kind)
	assert.Equal(t, userID.String(), activity.Fields["userId"])
	assert.Equal(t, "login", activity.Fields["activityType"])

	text := models.TextSubject("hello")
	assert.Equal(t, models.SubjectText, text.Kind)
	assert.Equal(t, "hello", text.Text)
}

func TestEvaluationContextAt(t *testing.T) {
	var ectx models.EvaluationContext
	assert.False(t, ectx.At().IsZero())
}
