// Package findings persists the audit trail of rule matches and emits the
// typed events downstream delivery fans out on.
package findings

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clearlane/compliance-engine/pkg/models"
)

// Finding is one persisted record of an evaluation pass that matched at
// least one rule. Findings are append-only: they are never deleted, only
// status-transitioned, so the table doubles as an audit trail.
type Finding struct {
	ID          uuid.UUID            `json:"id" gorm:"type:uuid;primaryKey"`
	WorkspaceID uuid.UUID            `json:"workspace_id" gorm:"type:uuid;index"`
	ActorID     uuid.UUID            `json:"actor_id" gorm:"type:uuid;index"`
	Category    models.RuleCategory  `json:"category" gorm:"index"`
	SubjectKind models.SubjectKind   `json:"subject_kind"`
	SubjectID   *uuid.UUID           `json:"subject_id,omitempty" gorm:"type:uuid;index"`
	Severity    string               `json:"severity" gorm:"index"`
	Status      models.FindingStatus `json:"status" gorm:"index"`
	Action      models.Action        `json:"action"`

	RuleMatchesJSON string `json:"-" gorm:"column:rule_matches;type:jsonb"`
	EvidenceJSON    string `json:"-" gorm:"column:evidence;type:jsonb"`

	ResolvedBy      *uuid.UUID `json:"resolved_by,omitempty" gorm:"type:uuid"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Finding) TableName() string { return "compliance_findings" }

// SetRuleMatches stores the matched rule ids.
func (f *Finding) SetRuleMatches(ids []uuid.UUID) {
	encoded, _ := json.Marshal(ids)
	f.RuleMatchesJSON = string(encoded)
}

// RuleMatches returns the matched rule ids.
func (f *Finding) RuleMatches() []uuid.UUID {
	var ids []uuid.UUID
	_ = json.Unmarshal([]byte(f.RuleMatchesJSON), &ids)
	return ids
}

// SetEvidence stores the free-form evidence collected during the pass.
func (f *Finding) SetEvidence(evidence []map[string]interface{}) {
	encoded, _ := json.Marshal(evidence)
	f.EvidenceJSON = string(encoded)
}

// Evidence returns the evidence entries.
func (f *Finding) Evidence() []map[string]interface{} {
	var evidence []map[string]interface{}
	_ = json.Unmarshal([]byte(f.EvidenceJSON), &evidence)
	return evidence
}

// AggregateSeverity returns the finding's severity ordinal.
func (f *Finding) AggregateSeverity() models.Severity {
	return models.ParseSeverity(f.Severity)
}
