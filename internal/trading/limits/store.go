package limits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const limitCacheTTL = 30 * time.Second

// Store resolves a user's financial roles to their trading limits. Role
// limit rows change rarely, so reads go through a short-lived cache keyed
// by role and workspace.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	mu        sync.RWMutex
	cache     map[string][]*TradingLimit
	cacheTime map[string]time.Time
}

// NewStore creates the limits store and migrates its tables.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&TradingLimit{}, &UserRole{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate trading limit tables")
	}
	return &Store{
		db:        db,
		logger:    logger,
		cache:     make(map[string][]*TradingLimit),
		cacheTime: make(map[string]time.Time),
	}, nil
}

// GetEffectiveLimits returns the limit rows for every financial role the
// user holds in the workspace, along with the roles themselves so callers
// can tell a user with no roles apart from one whose roles have no limits
// configured.
func (s *Store) GetEffectiveLimits(ctx context.Context, userID, workspaceID uuid.UUID) ([]*TradingLimit, []string, error) {
	roles, err := s.userRoles(ctx, userID, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	if len(roles) == 0 {
		return nil, nil, nil
	}

	var resolved []*TradingLimit
	for _, role := range roles {
		roleLimits, err := s.roleLimits(ctx, role, workspaceID)
		if err != nil {
			return nil, nil, err
		}
		resolved = append(resolved, roleLimits...)
	}
	return resolved, roles, nil
}

// AssignRole grants a financial role to a user in a workspace.
func (s *Store) AssignRole(ctx context.Context, userID, workspaceID uuid.UUID, role string) error {
	assignment := &UserRole{
		ID:          uuid.New(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
	}
	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		return errors.Wrap(err, "failed to assign role")
	}
	return nil
}

// UpsertLimit creates or replaces the limit row for a role.
func (s *Store) UpsertLimit(ctx context.Context, limit *TradingLimit) error {
	if limit.ID == uuid.Nil {
		limit.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Save(limit).Error; err != nil {
		return errors.Wrap(err, "failed to save trading limit")
	}
	s.invalidate()
	return nil
}

func (s *Store) userRoles(ctx context.Context, userID, workspaceID uuid.UUID) ([]string, error) {
	var assignments []UserRole
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Find(&assignments).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user roles")
	}
	roles := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roles = append(roles, a.Role)
	}
	return roles, nil
}

func (s *Store) roleLimits(ctx context.Context, role string, workspaceID uuid.UUID) ([]*TradingLimit, error) {
	key := role + ":" + workspaceID.String()

	s.mu.RLock()
	cached, ok := s.cache[key]
	fresh := ok && time.Since(s.cacheTime[key]) < limitCacheTTL
	s.mu.RUnlock()
	if fresh {
		return cached, nil
	}

	var roleLimits []*TradingLimit
	err := s.db.WithContext(ctx).
		Where("role = ? AND (workspace_id IS NULL OR workspace_id = ?)", role, workspaceID).
		Find(&roleLimits).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load trading limits")
	}

	s.mu.Lock()
	s.cache[key] = roleLimits
	s.cacheTime[key] = time.Now()
	s.mu.Unlock()
	return roleLimits, nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = make(map[string][]*TradingLimit)
	s.cacheTime = make(map[string]time.Time)
	s.mu.Unlock()
}
