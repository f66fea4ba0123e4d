package findings

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/messaging"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// AuditLogger records finding creation and resolution on the tamper trail.
type AuditLogger interface {
	Log(ctx context.Context, actor uuid.UUID, action, resourceType, resourceID string, details map[string]interface{}, workspaceID uuid.UUID)
}

// Recorder persists findings and emits the corresponding events. The
// decision a finding documents has already been returned to the caller by
// the time Record runs, so persistence and eventing failures are logged and
// swallowed, never surfaced.
type Recorder struct {
	store  *Store
	bus    messaging.Bus
	audit  AuditLogger
	logger *zap.Logger
}

// NewRecorder creates a recorder. audit may be nil.
func NewRecorder(store *Store, bus messaging.Bus, audit AuditLogger, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, bus: bus, audit: audit, logger: logger}
}

// Record persists the finding and publishes its events. Findings with zero
// rule matches are never recorded; a clean pass leaves no row and no event.
func (r *Recorder) Record(ctx context.Context, finding *Finding) {
	if len(finding.RuleMatches()) == 0 {
		return
	}

	if err := r.store.Create(ctx, finding); err != nil {
		r.logger.Error("failed to persist finding, decision already returned",
			zap.String("workspace_id", finding.WorkspaceID.String()),
			zap.String("severity", finding.Severity),
			zap.Error(err))
	}

	r.publish(ctx, finding)

	if r.audit != nil {
		r.audit.Log(ctx, finding.ActorID, "finding.recorded", "compliance_finding",
			finding.ID.String(), map[string]interface{}{
				"severity": finding.Severity,
				"action":   string(finding.Action),
				"category": string(finding.Category),
			}, finding.WorkspaceID)
	}
}

func (r *Recorder) publish(ctx context.Context, finding *Finding) {
	payload := map[string]interface{}{
		"finding_id":   finding.ID.String(),
		"actor_id":     finding.ActorID.String(),
		"category":     string(finding.Category),
		"severity":     finding.Severity,
		"action":       string(finding.Action),
		"rule_matches": finding.RuleMatchesJSON,
	}
	if finding.SubjectID != nil {
		payload["subject_id"] = finding.SubjectID.String()
	}

	classType := messaging.EventSuspiciousActivity
	if finding.AggregateSeverity() >= models.SeverityHigh {
		classType = messaging.EventBreachDetected
	}
	r.emit(ctx, messaging.NewEvent(classType, finding.WorkspaceID, payload))

	var complianceType messaging.EventType
	switch finding.Action {
	case models.ActionBlocked:
		complianceType = messaging.EventComplianceViolation
	case models.ActionFlagged:
		complianceType = messaging.EventComplianceWarning
	default:
		complianceType = messaging.EventComplianceDetected
	}
	r.emit(ctx, messaging.NewEvent(complianceType, finding.WorkspaceID, payload))
}

func (r *Recorder) emit(ctx context.Context, event messaging.Event) {
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Error("failed to publish finding event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
