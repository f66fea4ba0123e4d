package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/metrics"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// VelocityStore answers time-windowed counts of an actor's prior activity.
// The count excludes the event currently being evaluated.
type VelocityStore interface {
	Count(ctx context.Context, actorID uuid.UUID, activityType string, since time.Time) (int, error)
}

// VelocityEvaluator matches when the actor's prior occurrence count within
// the trailing window reaches the configured maximum. It is the only
// evaluator with an I/O dependency, so it carries its own bounded timeout;
// a store error or timeout fails open to "no match".
type VelocityEvaluator struct {
	store   VelocityStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewVelocityEvaluator(store VelocityStore, timeout time.Duration, logger *zap.Logger) *VelocityEvaluator {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &VelocityEvaluator{store: store, timeout: timeout, logger: logger}
}

func (e *VelocityEvaluator) Type() models.RuleType { return models.RuleTypeVelocity }

func (e *VelocityEvaluator) Evaluate(ctx context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Velocity

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	since := in.Context.At().Add(-cfg.Window())
	count, err := e.store.Count(ctx, in.Context.ActorID, cfg.ActivityType, since)
	if err != nil {
		e.logger.Warn("velocity store unavailable, treating rule as not matched",
			zap.String("rule_id", rule.ID.String()),
			zap.String("actor_id", in.Context.ActorID.String()),
			zap.Error(err))
		metrics.DegradedFallbacks.WithLabelValues("velocity").Inc()
		return &Outcome{Matched: false}, nil
	}

	if count < cfg.MaxCount {
		return &Outcome{Matched: false}, nil
	}

	return &Outcome{
		Matched:  true,
		Severity: rule.BaselineSeverity(),
		Evidence: map[string]interface{}{
			"count":          count,
			"max_count":      cfg.MaxCount,
			"window_minutes": int(cfg.Window().Minutes()),
			"activity_type":  cfg.ActivityType,
		},
	}, nil
}
