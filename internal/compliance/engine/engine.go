package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/metrics"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// Engine fans out the applicable rules of one pass to their evaluators in
// parallel and collects the per-rule outcomes.
type Engine struct {
	evaluators map[models.RuleType]Evaluator
	timeout    time.Duration
	logger     *zap.Logger
}

// NewEngine creates an engine from the given evaluator strategies.
func NewEngine(evaluators []Evaluator, timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	byType := make(map[models.RuleType]Evaluator, len(evaluators))
	for _, ev := range evaluators {
		byType[ev.Type()] = ev
	}
	return &Engine{evaluators: byType, timeout: timeout, logger: logger}
}

type ruleResult struct {
	rule    *rules.Rule
	outcome *Outcome
	err     error
}

// Run evaluates every rule against the input. Rules run concurrently; a rule
// that errors or panics is reported as errored and never aborts its siblings.
// When the pass deadline fires, outcomes collected so far are returned and
// each straggler is reported as errored, so the aggregate is marked degraded
// and the fail-closed enforcement path can see it.
func (e *Engine) Run(ctx context.Context, ruleset []*rules.Rule, in *Input) []RuleOutcome {
	if len(ruleset) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan ruleResult, len(ruleset))
	for _, rule := range ruleset {
		go func(rule *rules.Rule) {
			var res ruleResult
			res.rule = rule
			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("evaluator panic: %v", r)
					res.outcome = nil
				}
				ch <- res
			}()

			ev, ok := e.evaluators[rule.Type]
			if !ok {
				res.err = fmt.Errorf("no evaluator registered for rule type %q", rule.Type)
				return
			}
			res.outcome, res.err = ev.Evaluate(ctx, rule, in)
		}(rule)
	}

	collected := make([]ruleResult, 0, len(ruleset))
	remaining := len(ruleset)
	for remaining > 0 {
		select {
		case res := <-ch:
			collected = append(collected, res)
			remaining--
		case <-ctx.Done():
			e.logger.Warn("evaluation deadline exceeded, returning partial results",
				zap.Duration("timeout", e.timeout),
				zap.Int("pending_rules", remaining))
			done := make(map[uuid.UUID]bool, len(collected))
			for _, res := range collected {
				done[res.rule.ID] = true
			}
			for _, rule := range ruleset {
				if !done[rule.ID] {
					collected = append(collected, ruleResult{
						rule: rule,
						err:  fmt.Errorf("evaluation deadline exceeded: %w", ctx.Err()),
					})
				}
			}
			remaining = 0
		}
	}

	outcomes := make([]RuleOutcome, 0, len(collected))
	for _, res := range collected {
		out := RuleOutcome{
			RuleID:   res.rule.ID,
			RuleName: res.rule.Name,
			RuleType: res.rule.Type,
		}
		if res.err != nil {
			e.logger.Warn("rule evaluation failed, treating as not matched",
				zap.String("rule_id", res.rule.ID.String()),
				zap.String("rule_type", string(res.rule.Type)),
				zap.Error(res.err))
			metrics.EvaluatorErrors.WithLabelValues(string(res.rule.Type)).Inc()
			out.Errored = true
			outcomes = append(outcomes, out)
			continue
		}
		if res.outcome != nil && res.outcome.Matched {
			out.Matched = true
			out.Severity = res.outcome.Severity
			out.Evidence = res.outcome.Evidence
			metrics.RuleMatches.WithLabelValues(out.Severity.String()).Inc()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
