package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clearlane/compliance-engine/pkg/models"
)

// AuditLogger records administrative rule changes on the tamper trail.
// Writes are fire-and-forget from the store's perspective.
type AuditLogger interface {
	Log(ctx context.Context, actor uuid.UUID, action, resourceType, resourceID string, details map[string]interface{}, workspaceID uuid.UUID)
}

// Store resolves enabled rules applicable to a category and workspace, with a
// short-lived read-through cache invalidated on writes.
type Store struct {
	db       *gorm.DB
	logger   *zap.Logger
	audit    AuditLogger
	cacheTTL time.Duration

	mu       sync.RWMutex
	cache    map[string][]*Rule
	cachedAt map[string]time.Time
}

// NewStore creates a rule store. audit may be nil.
func NewStore(db *gorm.DB, logger *zap.Logger, audit AuditLogger) *Store {
	return &Store{
		db:       db,
		logger:   logger,
		audit:    audit,
		cacheTTL: 30 * time.Second,
		cache:    make(map[string][]*Rule),
		cachedAt: make(map[string]time.Time),
	}
}

// SetCacheTTL overrides the read cache lifetime.
func (s *Store) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

// Migrate creates the rule table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Rule{})
}

func cacheKey(category models.RuleCategory, workspaceID uuid.UUID) string {
	return string(category) + ":" + workspaceID.String()
}

// GetApplicableRules returns enabled rules visible in the workspace for the
// category: all system-scoped rules plus the workspace's own. Rules with
// malformed logic are logged and skipped so one bad rule cannot poison a pass.
func (s *Store) GetApplicableRules(ctx context.Context, category models.RuleCategory, workspaceID uuid.UUID) ([]*Rule, error) {
	key := cacheKey(category, workspaceID)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && time.Since(s.cachedAt[key]) < s.cacheTTL {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	var loaded []*Rule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("category = ?", category).
		Where("scope = ? OR (scope = ? AND workspace_id = ?)",
			models.ScopeSystem, models.ScopeWorkspace, workspaceID).
		Order("created_at").
		Find(&loaded).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load applicable rules")
	}

	valid := make([]*Rule, 0, len(loaded))
	for _, r := range loaded {
		if err := r.ParseLogic(); err != nil {
			s.logger.Warn("skipping rule with invalid logic",
				zap.String("rule_id", r.ID.String()),
				zap.String("rule_type", string(r.Type)),
				zap.Error(err))
			continue
		}
		valid = append(valid, r)
	}

	s.mu.Lock()
	s.cache[key] = valid
	s.cachedAt[key] = time.Now()
	s.mu.Unlock()

	return valid, nil
}

// ListRules returns all rules, newest first, optionally filtered by
// category and workspace. Unlike GetApplicableRules it includes disabled
// rules and bypasses the cache, for administration.
func (s *Store) ListRules(ctx context.Context, category *models.RuleCategory, workspaceID *uuid.UUID) ([]*Rule, error) {
	query := s.db.WithContext(ctx).Model(&Rule{})
	if category != nil {
		query = query.Where("category = ?", *category)
	}
	if workspaceID != nil {
		query = query.Where("scope = ? OR workspace_id = ?", models.ScopeSystem, *workspaceID)
	}

	var loaded []*Rule
	if err := query.Order("created_at DESC").Find(&loaded).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list rules")
	}
	return loaded, nil
}

// CreateRule validates and persists a new rule.
func (s *Store) CreateRule(ctx context.Context, actor uuid.UUID, rule *Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Scope == models.ScopeWorkspace && rule.WorkspaceID == nil {
		return fmt.Errorf("workspace-scoped rule requires a workspace id")
	}
	if err := rule.ParseLogic(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return errors.Wrap(err, "failed to create rule")
	}
	s.invalidate()
	s.auditWrite(ctx, actor, "rule.created", rule)
	return nil
}

// UpdateRule validates and replaces an existing rule definition.
func (s *Store) UpdateRule(ctx context.Context, actor uuid.UUID, rule *Rule) error {
	if err := rule.ParseLogic(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&Rule{}).Where("id = ?", rule.ID).Updates(map[string]interface{}{
		"name":        rule.Name,
		"description": rule.Description,
		"category":    rule.Category,
		"rule_type":   rule.Type,
		"severity":    rule.Severity,
		"enabled":     rule.Enabled,
		"logic":       rule.LogicJSON,
		"updated_at":  time.Now(),
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update rule")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	s.invalidate()
	s.auditWrite(ctx, actor, "rule.updated", rule)
	return nil
}

// SetEnabled flips a rule's enabled flag. Disabled rules are never evaluated.
func (s *Store) SetEnabled(ctx context.Context, actor uuid.UUID, ruleID uuid.UUID, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&Rule{}).Where("id = ?", ruleID).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update rule enabled flag")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rule not found: %s", ruleID)
	}
	s.invalidate()

	action := "rule.disabled"
	if enabled {
		action = "rule.enabled"
	}
	if s.audit != nil {
		s.audit.Log(ctx, actor, action, "compliance_rule", ruleID.String(), nil, uuid.Nil)
	}
	return nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = make(map[string][]*Rule)
	s.cachedAt = make(map[string]time.Time)
	s.mu.Unlock()
}

func (s *Store) auditWrite(ctx context.Context, actor uuid.UUID, action string, rule *Rule) {
	if s.audit == nil {
		return
	}
	ws := uuid.Nil
	if rule.WorkspaceID != nil {
		ws = *rule.WorkspaceID
	}
	s.audit.Log(ctx, actor, action, "compliance_rule", rule.ID.String(), map[string]interface{}{
		"name":      rule.Name,
		"category":  string(rule.Category),
		"rule_type": string(rule.Type),
		"severity":  rule.Severity,
		"enabled":   rule.Enabled,
	}, ws)
}
