package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/findings"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/metrics"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// Options tune a single evaluation pass.
type Options struct {
	// SkipRuleBased restricts the pass to semantic validators.
	SkipRuleBased bool
	// SkipSemantic drops semantic validators from the pass.
	SkipSemantic bool
}

// ValidationResult is the structured outcome returned to LLM-validation
// callers.
type ValidationResult struct {
	Passed      bool                     `json:"passed"`
	RuleMatches []uuid.UUID              `json:"rule_matches"`
	Severity    models.Severity          `json:"severity"`
	Action      models.Action            `json:"action"`
	Evidence    []map[string]interface{} `json:"evidence,omitempty"`
	FindingID   *uuid.UUID               `json:"finding_id,omitempty"`
}

// VelocityRecorder appends an occurrence to the velocity window so later
// passes can count it. Best-effort: failures are logged, never surfaced.
type VelocityRecorder interface {
	Record(ctx context.Context, actorID uuid.UUID, activityType string, at time.Time) error
}

// Service is the public evaluation surface, constructed once at process
// start with its collaborators injected.
type Service struct {
	logger           *zap.Logger
	rules            *rules.Store
	engine           *Engine
	recorder         *findings.Recorder
	velocity         VelocityRecorder
	sanitizer        *bluemonday.Policy
	failOpenBlocking bool
}

// NewService creates the evaluation service. velocity may be nil when no
// velocity rules are in use. failOpenBlocking keeps the blocking path
// fail-open on evaluator errors; set it false to block when an enforcement
// validator could not run.
func NewService(logger *zap.Logger, ruleStore *rules.Store, eng *Engine, recorder *findings.Recorder, velocity VelocityRecorder, failOpenBlocking bool) *Service {
	return &Service{
		logger:           logger,
		rules:            ruleStore,
		engine:           eng,
		recorder:         recorder,
		velocity:         velocity,
		sanitizer:        bluemonday.StrictPolicy(),
		failOpenBlocking: failOpenBlocking,
	}
}

// EvaluateTransaction runs the transaction-category rules against a
// transaction snapshot and returns the findings of the pass (empty when
// every rule passed).
func (s *Service) EvaluateTransaction(ctx context.Context, txID uuid.UUID, snapshot map[string]interface{}, ectx models.EvaluationContext, opts Options) ([]*findings.Finding, error) {
	subject := models.TransactionSubject(txID, snapshot)
	_, finding, err := s.evaluate(ctx, models.CategoryTransaction, subject, ectx, opts, false)
	if err != nil {
		return nil, err
	}
	s.recordOccurrence(ctx, ectx, transactionType(snapshot))
	if finding == nil {
		return nil, nil
	}
	return []*findings.Finding{finding}, nil
}

// EvaluateUserActivity runs the user-behavior rules against a
// {userID, activityType} pair.
func (s *Service) EvaluateUserActivity(ctx context.Context, userID uuid.UUID, activityType string, ectx models.EvaluationContext) ([]*findings.Finding, error) {
	if ectx.ActorID == uuid.Nil {
		ectx.ActorID = userID
	}
	subject := models.ActivitySubject(userID, activityType)
	_, finding, err := s.evaluate(ctx, models.CategoryUserBehavior, subject, ectx, Options{}, false)
	if err != nil {
		return nil, err
	}
	s.recordOccurrence(ctx, ectx, activityType)
	if finding == nil {
		return nil, nil
	}
	return []*findings.Finding{finding}, nil
}

// ValidateInput evaluates LLM input text. Input-only passes report findings
// without an enforcement action.
func (s *Service) ValidateInput(ctx context.Context, text string, ectx models.EvaluationContext) (*ValidationResult, error) {
	return s.validateText(ctx, models.CategoryLLMInput, text, ectx, false)
}

// ValidateOutput evaluates LLM output text and computes the enforcement
// action from the effective block/flag thresholds in scope.
func (s *Service) ValidateOutput(ctx context.Context, text string, ectx models.EvaluationContext) (*ValidationResult, error) {
	return s.validateText(ctx, models.CategoryLLMOutput, text, ectx, true)
}

// ValidateExchange validates an input/output pair as one exchange. The
// enforcement action comes from the output side only.
func (s *Service) ValidateExchange(ctx context.Context, input, output string, ectx models.EvaluationContext) (*ValidationResult, error) {
	inResult, err := s.ValidateInput(ctx, input, ectx)
	if err != nil {
		return nil, err
	}
	outResult, err := s.ValidateOutput(ctx, output, ectx)
	if err != nil {
		return nil, err
	}

	combined := &ValidationResult{
		Passed:   inResult.Passed && outResult.Passed,
		Severity: models.MaxSeverity(inResult.Severity, outResult.Severity),
		Action:   outResult.Action,
	}
	seen := make(map[uuid.UUID]bool)
	for _, id := range append(inResult.RuleMatches, outResult.RuleMatches...) {
		if !seen[id] {
			seen[id] = true
			combined.RuleMatches = append(combined.RuleMatches, id)
		}
	}
	combined.Evidence = append(combined.Evidence, inResult.Evidence...)
	combined.Evidence = append(combined.Evidence, outResult.Evidence...)
	if outResult.FindingID != nil {
		combined.FindingID = outResult.FindingID
	} else {
		combined.FindingID = inResult.FindingID
	}
	return combined, nil
}

func (s *Service) validateText(ctx context.Context, category models.RuleCategory, text string, ectx models.EvaluationContext, withAction bool) (*ValidationResult, error) {
	subject := models.TextSubject(text)
	result, finding, err := s.evaluate(ctx, category, subject, ectx, Options{}, withAction)
	if err != nil {
		return nil, err
	}

	validation := &ValidationResult{
		Passed:      result.pass.Passed,
		RuleMatches: result.pass.RuleMatches,
		Severity:    result.pass.Severity,
		Action:      result.action,
		Evidence:    result.pass.Evidence,
	}
	if finding != nil {
		id := finding.ID
		validation.FindingID = &id
	}
	return validation, nil
}

type passOutcome struct {
	pass   PassResult
	action models.Action
}

// evaluate runs one pass: resolve rules, fan out, aggregate, decide the
// action when asked, and hand any finding to the recorder. Only a rule-store
// failure surfaces as an error; everything else fails open per rule.
func (s *Service) evaluate(ctx context.Context, category models.RuleCategory, subject models.Subject, ectx models.EvaluationContext, opts Options, withAction bool) (*passOutcome, *findings.Finding, error) {
	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = time.Now()
	}

	ruleset, err := s.rules.GetApplicableRules(ctx, category, ectx.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}
	ruleset = filterRules(ruleset, opts)

	input := &Input{
		Subject:        subject,
		Context:        ectx,
		NormalizedText: s.normalizeText(subject.Text),
	}

	start := time.Now()
	outcomes := s.engine.Run(ctx, ruleset, input)
	metrics.PassLatency.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())

	pass := Aggregate(outcomes)

	action := models.ActionNone
	if withAction {
		block, flag := EffectiveThresholds(ruleset)
		action = DecideAction(pass.Severity, block, flag)
		if pass.Degraded && !s.failOpenBlocking {
			// Fail-closed enforcement: a validator that could not run
			// blocks the exchange instead of letting it through.
			action = models.ActionBlocked
			s.logger.Warn("blocking degraded pass, fail-open disabled on enforcement path",
				zap.String("category", string(category)),
				zap.String("workspace_id", ectx.WorkspaceID.String()))
		}
		metrics.ActionsTotal.WithLabelValues(string(action)).Inc()
	}

	outcome := "passed"
	if !pass.Passed {
		outcome = "failed"
	}
	metrics.EvaluationsTotal.WithLabelValues(string(category), outcome).Inc()

	var finding *findings.Finding
	if !pass.Passed {
		finding = s.buildFinding(category, subject, ectx, pass, action)
		s.recorder.Record(ctx, finding)
	}
	return &passOutcome{pass: pass, action: action}, finding, nil
}

func (s *Service) buildFinding(category models.RuleCategory, subject models.Subject, ectx models.EvaluationContext, pass PassResult, action models.Action) *findings.Finding {
	finding := &findings.Finding{
		ID:          uuid.New(),
		WorkspaceID: ectx.WorkspaceID,
		ActorID:     ectx.ActorID,
		Category:    category,
		SubjectKind: subject.Kind,
		SubjectID:   subject.ID,
		Severity:    pass.Severity.String(),
		Status:      models.FindingStatusNew,
		Action:      action,
		RequestID:   ectx.RequestID,
	}
	finding.SetRuleMatches(pass.RuleMatches)
	finding.SetEvidence(pass.Evidence)
	return finding
}

func (s *Service) recordOccurrence(ctx context.Context, ectx models.EvaluationContext, activityType string) {
	if s.velocity == nil || ectx.ActorID == uuid.Nil {
		return
	}
	if err := s.velocity.Record(ctx, ectx.ActorID, activityType, ectx.At()); err != nil {
		s.logger.Warn("failed to record velocity occurrence",
			zap.String("actor_id", ectx.ActorID.String()),
			zap.Error(err))
	}
}

func (s *Service) normalizeText(text string) string {
	if text == "" {
		return ""
	}
	return strings.ToLower(s.sanitizer.Sanitize(text))
}

func filterRules(ruleset []*rules.Rule, opts Options) []*rules.Rule {
	if !opts.SkipRuleBased && !opts.SkipSemantic {
		return ruleset
	}
	filtered := make([]*rules.Rule, 0, len(ruleset))
	for _, rule := range ruleset {
		semantic := rule.Type == models.RuleTypeSemantic
		if opts.SkipRuleBased && !semantic {
			continue
		}
		if opts.SkipSemantic && semantic {
			continue
		}
		filtered = append(filtered, rule)
	}
	return filtered
}

func transactionType(snapshot map[string]interface{}) string {
	if t, ok := snapshot["type"].(string); ok {
		return t
	}
	return ""
}
