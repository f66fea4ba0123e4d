package limits_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/trading/limits"
	"github.com/clearlane/compliance-engine/pkg/models"
)

type fakeResolver struct {
	limits []*limits.TradingLimit
	roles  []string
	err    error
}

func (r *fakeResolver) GetEffectiveLimits(_ context.Context, _, _ uuid.UUID) ([]*limits.TradingLimit, []string, error) {
	return r.limits, r.roles, r.err
}

func check(t *testing.T, resolver *fakeResolver, details limits.TransactionDetails) *limits.CheckResult {
	t.Helper()
	checker := limits.NewChecker(resolver, zap.NewNop())
	result, err := checker.CheckTradingLimits(context.Background(), uuid.New(), details, uuid.New())
	require.NoError(t, err)
	return result
}

func TestCheckApprovedUnderAllCaps(t *testing.T) {
	resolver := &fakeResolver{limits: []*limits.TradingLimit{roleLimit("5000")}}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "4500", InstrumentType: "equity"})
	assert.Equal(t, models.LimitApproved, result.Decision)
	assert.Empty(t, result.Reason)
}

func TestCheckMostRestrictiveRoleWins(t *testing.T) {
	// Two roles with caps 5000 and 10000; the effective cap is 5000, so an
	// order of 7000 is rejected even though one role would allow it.
	resolver := &fakeResolver{limits: []*limits.TradingLimit{
		roleLimit("5000"),
		roleLimit("10000"),
	}}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "7000", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
	assert.Contains(t, result.Reason, "max order size")
}

func TestCheckNoRolesRejected(t *testing.T) {
	resolver := &fakeResolver{}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "10", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
	assert.Contains(t, result.Reason, "no financial roles")
}

func TestCheckRolesWithoutLimitsRejected(t *testing.T) {
	// The user holds a financial role but no limit rows exist for it. The
	// transaction is still rejected, and the reason must not claim the user
	// has no roles.
	resolver := &fakeResolver{roles: []string{"trader"}}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "10", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
	assert.Contains(t, result.Reason, "no trading limits configured")
	assert.NotContains(t, result.Reason, "no financial roles")
}

func TestCheckUnparsableAmountRejected(t *testing.T) {
	resolver := &fakeResolver{limits: []*limits.TradingLimit{roleLimit("5000")}}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "12,5", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
	assert.Contains(t, result.Reason, "unparsable amount")
}

func TestCheckInstrumentRestriction(t *testing.T) {
	limit := roleLimit("5000")
	limit.SetInstrumentRestrictions([]string{"derivative"})
	resolver := &fakeResolver{limits: []*limits.TradingLimit{limit}}

	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "100", InstrumentType: "derivative"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
	assert.Contains(t, result.Reason, "restricted")
}

func TestCheckTransactionTypeRestriction(t *testing.T) {
	limit := roleLimit("5000")
	limit.SetTransactionTypeRestrictions([]string{"short_sell"})
	resolver := &fakeResolver{limits: []*limits.TradingLimit{limit}}

	result := check(t, resolver, limits.TransactionDetails{Type: "short_sell", Amount: "100", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
}

func TestCheckApprovalThreshold(t *testing.T) {
	resolver := &fakeResolver{limits: []*limits.TradingLimit{
		roleLimit("10000", approvalAbove("2500")),
	}}

	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "3000", InstrumentType: "equity"})
	assert.Equal(t, models.LimitRequiresApproval, result.Decision)
	assert.Contains(t, result.Reason, "approval threshold")

	// At the threshold exactly the transaction is approved.
	result = check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "2500", InstrumentType: "equity"})
	assert.Equal(t, models.LimitApproved, result.Decision)
}

func TestCheckPerTypeApprovalFlag(t *testing.T) {
	limit := roleLimit("10000")
	limit.SetApprovalRequirements(map[string]bool{"wire_transfer": true})
	resolver := &fakeResolver{limits: []*limits.TradingLimit{limit}}

	result := check(t, resolver, limits.TransactionDetails{Type: "wire_transfer", Amount: "100", InstrumentType: "equity"})
	assert.Equal(t, models.LimitRequiresApproval, result.Decision)
	assert.Contains(t, result.Reason, "requires approval")
}

func TestCheckSizeCapOutranksApprovalThreshold(t *testing.T) {
	// When an amount breaks both the size cap and the approval threshold the
	// hard rejection wins.
	resolver := &fakeResolver{limits: []*limits.TradingLimit{
		roleLimit("5000", approvalAbove("1000")),
	}}
	result := check(t, resolver, limits.TransactionDetails{Type: "buy", Amount: "6000", InstrumentType: "equity"})
	assert.Equal(t, models.LimitExceeded, result.Decision)
}

func TestCheckResolverErrorPropagates(t *testing.T) {
	checker := limits.NewChecker(&fakeResolver{err: errors.New("database unavailable")}, zap.NewNop())
	_, err := checker.CheckTradingLimits(context.Background(), uuid.New(), limits.TransactionDetails{
		Type: "buy", Amount: "100", InstrumentType: "equity",
	}, uuid.New())
	assert.Error(t, err)
}
