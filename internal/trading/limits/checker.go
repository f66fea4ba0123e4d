package limits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/pkg/metrics"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// TransactionDetails describes the proposed transaction being checked.
// Amount arrives as a string so callers never round through floats.
type TransactionDetails struct {
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	InstrumentType string `json:"instrument_type"`
	InstrumentID   string `json:"instrument_id,omitempty"`
	Direction      string `json:"direction,omitempty"`
}

// CheckResult is the limit decision with a human-readable reason.
type CheckResult struct {
	Decision models.LimitDecision `json:"decision"`
	Reason   string               `json:"reason,omitempty"`
}

// LimitResolver yields the limit rows for all roles a user holds, plus the
// roles themselves.
type LimitResolver interface {
	GetEffectiveLimits(ctx context.Context, userID, workspaceID uuid.UUID) ([]*TradingLimit, []string, error)
}

// Checker evaluates proposed transactions against the effective limit.
type Checker struct {
	store  LimitResolver
	logger *zap.Logger
}

// NewChecker creates a trading limit checker.
func NewChecker(store LimitResolver, logger *zap.Logger) *Checker {
	return &Checker{store: store, logger: logger}
}

// CheckTradingLimits decides approved, requires_approval, or limit_exceeded
// for the proposed transaction. Checks run in fixed priority order: order
// size cap, instrument restriction, transaction type restriction, then
// approval thresholds. A user with no financial roles, or whose roles have
// no limits configured, is always rejected.
func (c *Checker) CheckTradingLimits(ctx context.Context, userID uuid.UUID, details TransactionDetails, workspaceID uuid.UUID) (*CheckResult, error) {
	roleLimits, roles, err := c.store.GetEffectiveLimits(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}

	result := c.decide(roleLimits, roles, details)
	metrics.LimitChecks.WithLabelValues(string(result.Decision)).Inc()
	if result.Decision != models.LimitApproved {
		c.logger.Info("trading limit check rejected or gated transaction",
			zap.String("user_id", userID.String()),
			zap.String("workspace_id", workspaceID.String()),
			zap.String("decision", string(result.Decision)),
			zap.String("reason", result.Reason))
	}
	return result, nil
}

func (c *Checker) decide(roleLimits []*TradingLimit, roles []string, details TransactionDetails) *CheckResult {
	eff := MergeLimits(roleLimits)
	if eff == nil {
		reason := "no financial roles assigned"
		if len(roles) > 0 {
			reason = "no trading limits configured for the user's roles"
		}
		return &CheckResult{
			Decision: models.LimitExceeded,
			Reason:   reason,
		}
	}

	amount, err := decimal.NewFromString(details.Amount)
	if err != nil {
		return &CheckResult{
			Decision: models.LimitExceeded,
			Reason:   fmt.Sprintf("unparsable amount %q", details.Amount),
		}
	}

	if amount.GreaterThan(eff.MaxOrderSize) {
		return &CheckResult{
			Decision: models.LimitExceeded,
			Reason: fmt.Sprintf("amount %s exceeds max order size %s",
				amount.String(), eff.MaxOrderSize.String()),
		}
	}
	if eff.InstrumentRestrictions[details.InstrumentType] {
		return &CheckResult{
			Decision: models.LimitExceeded,
			Reason:   fmt.Sprintf("instrument type %q is restricted", details.InstrumentType),
		}
	}
	if eff.TransactionTypeRestrictions[details.Type] {
		return &CheckResult{
			Decision: models.LimitExceeded,
			Reason:   fmt.Sprintf("transaction type %q is restricted", details.Type),
		}
	}
	if eff.RequiresApprovalAbove != nil && amount.GreaterThan(*eff.RequiresApprovalAbove) {
		return &CheckResult{
			Decision: models.LimitRequiresApproval,
			Reason: fmt.Sprintf("amount %s exceeds approval threshold %s",
				amount.String(), eff.RequiresApprovalAbove.String()),
		}
	}
	if eff.ApprovalRequirements[details.Type] {
		return &CheckResult{
			Decision: models.LimitRequiresApproval,
			Reason:   fmt.Sprintf("transaction type %q requires approval", details.Type),
		}
	}
	return &CheckResult{Decision: models.LimitApproved}
}
