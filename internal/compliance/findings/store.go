package findings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/clearlane/compliance-engine/pkg/models"
)

// ErrInvalidTransition is returned for a status change the lifecycle does
// not permit.
var ErrInvalidTransition = errors.New("invalid finding status transition")

// ErrResolutionRequired is returned when a terminal transition is attempted
// without resolver identity and notes.
var ErrResolutionRequired = errors.New("terminal transitions require resolver and notes")

// Store persists findings. Findings are only created and status-transitioned,
// never deleted.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the findings table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Finding{})
}

// Create appends a finding.
func (s *Store) Create(ctx context.Context, finding *Finding) error {
	if finding.ID == uuid.Nil {
		finding.ID = uuid.New()
	}
	if finding.Status == "" {
		finding.Status = models.FindingStatusNew
	}
	if err := s.db.WithContext(ctx).Create(finding).Error; err != nil {
		return errors.Wrap(err, "failed to create finding")
	}
	return nil
}

// GetByID loads a finding.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Finding, error) {
	var finding Finding
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&finding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("finding not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to load finding")
	}
	return &finding, nil
}

// ListFilter narrows a finding listing.
type ListFilter struct {
	WorkspaceID *uuid.UUID
	Status      *models.FindingStatus
	Severity    *models.Severity
	Limit       int
	Offset      int
}

// List returns findings matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Finding, error) {
	query := s.db.WithContext(ctx).Model(&Finding{})
	if filter.WorkspaceID != nil {
		query = query.Where("workspace_id = ?", *filter.WorkspaceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", filter.Severity.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var results []*Finding
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list findings")
	}
	return results, nil
}

// allowedTransitions is the finding lifecycle: new findings may move to
// investigating or straight to a terminal state; investigating findings may
// only terminate.
var allowedTransitions = map[models.FindingStatus][]models.FindingStatus{
	models.FindingStatusNew: {
		models.FindingStatusInvestigating,
		models.FindingStatusResolved,
		models.FindingStatusFalsePositive,
	},
	models.FindingStatusInvestigating: {
		models.FindingStatusResolved,
		models.FindingStatusFalsePositive,
	},
}

func transitionAllowed(from, to models.FindingStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves a finding to a new lifecycle status. Terminal transitions
// require resolver identity and notes.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, to models.FindingStatus, resolvedBy *uuid.UUID, notes string) (*Finding, error) {
	finding, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(finding.Status, to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", finding.Status, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to.Terminal() {
		if resolvedBy == nil || notes == "" {
			return nil, ErrResolutionRequired
		}
		now := time.Now()
		updates["resolved_by"] = *resolvedBy
		updates["resolution_notes"] = notes
		updates["resolved_at"] = now
		finding.ResolvedBy = resolvedBy
		finding.ResolutionNotes = notes
		finding.ResolvedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(&Finding{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, errors.Wrap(err, "failed to update finding status")
	}
	finding.Status = to
	return finding, nil
}
