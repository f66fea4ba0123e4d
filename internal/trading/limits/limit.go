// Package limits resolves per-role trading caps into a single effective
// limit and checks proposed transactions against it.
package limits

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradingLimit is the per-role cap set. A nil WorkspaceID makes the limit
// global; otherwise it applies to that workspace only.
type TradingLimit struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty" gorm:"type:uuid;index"`
	Role        string     `json:"role" gorm:"index;not null"`

	MaxOrderSize          decimal.Decimal  `json:"max_order_size" gorm:"type:numeric(20,8)"`
	RequiresApprovalAbove *decimal.Decimal `json:"requires_approval_above,omitempty" gorm:"type:numeric(20,8)"`

	InstrumentRestrictionsJSON      string `json:"-" gorm:"column:instrument_restrictions;type:jsonb"`
	TransactionTypeRestrictionsJSON string `json:"-" gorm:"column:transaction_type_restrictions;type:jsonb"`
	ApprovalRequirementsJSON        string `json:"-" gorm:"column:approval_requirements;type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the limits table.
func (TradingLimit) TableName() string {
	return "trading_limits"
}

// InstrumentRestrictions decodes the restricted instrument types.
func (l *TradingLimit) InstrumentRestrictions() []string {
	return decodeStrings(l.InstrumentRestrictionsJSON)
}

// SetInstrumentRestrictions encodes the restricted instrument types.
func (l *TradingLimit) SetInstrumentRestrictions(types []string) {
	l.InstrumentRestrictionsJSON = encodeStrings(types)
}

// TransactionTypeRestrictions decodes the restricted transaction types.
func (l *TradingLimit) TransactionTypeRestrictions() []string {
	return decodeStrings(l.TransactionTypeRestrictionsJSON)
}

// SetTransactionTypeRestrictions encodes the restricted transaction types.
func (l *TradingLimit) SetTransactionTypeRestrictions(types []string) {
	l.TransactionTypeRestrictionsJSON = encodeStrings(types)
}

// ApprovalRequirements decodes the per-transaction-type approval flags.
func (l *TradingLimit) ApprovalRequirements() map[string]bool {
	if l.ApprovalRequirementsJSON == "" {
		return nil
	}
	var flags map[string]bool
	if err := json.Unmarshal([]byte(l.ApprovalRequirementsJSON), &flags); err != nil {
		return nil
	}
	return flags
}

// SetApprovalRequirements encodes the per-transaction-type approval flags.
func (l *TradingLimit) SetApprovalRequirements(flags map[string]bool) {
	if len(flags) == 0 {
		l.ApprovalRequirementsJSON = ""
		return
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return
	}
	l.ApprovalRequirementsJSON = string(data)
}

// UserRole assigns a financial role to a user within a workspace.
type UserRole struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;index:idx_user_roles_user_ws"`
	WorkspaceID uuid.UUID `json:"workspace_id" gorm:"type:uuid;index:idx_user_roles_user_ws"`
	Role        string    `json:"role" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName sets the user roles table.
func (UserRole) TableName() string {
	return "user_roles"
}

// EffectiveLimit is the most restrictive combination of a user's role
// limits: minimum caps, union of restriction sets, ORed approval flags.
type EffectiveLimit struct {
	MaxOrderSize                decimal.Decimal
	RequiresApprovalAbove       *decimal.Decimal
	InstrumentRestrictions      map[string]bool
	TransactionTypeRestrictions map[string]bool
	ApprovalRequirements        map[string]bool
}

// MergeLimits intersects role limits into the effective limit. Returns nil
// when no limits are given.
func MergeLimits(roleLimits []*TradingLimit) *EffectiveLimit {
	if len(roleLimits) == 0 {
		return nil
	}

	eff := &EffectiveLimit{
		InstrumentRestrictions:      make(map[string]bool),
		TransactionTypeRestrictions: make(map[string]bool),
		ApprovalRequirements:        make(map[string]bool),
	}
	for i, limit := range roleLimits {
		if i == 0 || limit.MaxOrderSize.LessThan(eff.MaxOrderSize) {
			eff.MaxOrderSize = limit.MaxOrderSize
		}
		if limit.RequiresApprovalAbove != nil {
			if eff.RequiresApprovalAbove == nil || limit.RequiresApprovalAbove.LessThan(*eff.RequiresApprovalAbove) {
				threshold := *limit.RequiresApprovalAbove
				eff.RequiresApprovalAbove = &threshold
			}
		}
		for _, t := range limit.InstrumentRestrictions() {
			eff.InstrumentRestrictions[t] = true
		}
		for _, t := range limit.TransactionTypeRestrictions() {
			eff.TransactionTypeRestrictions[t] = true
		}
		for txType, required := range limit.ApprovalRequirements() {
			if required {
				eff.ApprovalRequirements[txType] = true
			}
		}
	}
	return eff
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}
