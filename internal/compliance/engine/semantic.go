package engine

import (
	"context"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/internal/compliance/semantic"
	"github.com/clearlane/compliance-engine/pkg/metrics"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// fuzzyMatchThreshold is the normalized levenshtein similarity a single-word
// pattern needs against a text token during literal fallback.
const fuzzyMatchThreshold = 0.85

// SemanticEvaluator scores the subject text against each rule's reference
// embedding by cosine similarity. When the embedding provider is unavailable
// it degrades to literal pattern matching instead of failing the pass.
type SemanticEvaluator struct {
	provider semantic.Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSemanticEvaluator creates the evaluator. provider may be nil, in which
// case every evaluation takes the literal fallback path.
func NewSemanticEvaluator(provider semantic.Provider, timeout time.Duration, logger *zap.Logger) *SemanticEvaluator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SemanticEvaluator{provider: provider, timeout: timeout, logger: logger}
}

func (e *SemanticEvaluator) Type() models.RuleType { return models.RuleTypeSemantic }

func (e *SemanticEvaluator) Evaluate(ctx context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Semantic
	if in.NormalizedText == "" {
		return &Outcome{Matched: false}, nil
	}

	if e.provider == nil {
		return e.literalFallback(rule, cfg, in.NormalizedText), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	subjectVec, err := e.provider.EmbedText(ctx, in.NormalizedText)
	if err != nil {
		return e.degrade(rule, cfg, in.NormalizedText, err), nil
	}
	ruleVec, err := e.provider.RuleEmbedding(ctx, rule.ID)
	if err != nil {
		return e.degrade(rule, cfg, in.NormalizedText, err), nil
	}

	similarity := semantic.Cosine(subjectVec, ruleVec)
	if similarity < cfg.EffectiveThreshold() {
		return &Outcome{Matched: false}, nil
	}

	return &Outcome{
		Matched:  true,
		Severity: rule.BaselineSeverity(),
		Evidence: map[string]interface{}{
			"similarity": similarity,
			"threshold":  cfg.EffectiveThreshold(),
		},
	}, nil
}

func (e *SemanticEvaluator) degrade(rule *rules.Rule, cfg *rules.SemanticLogic, text string, err error) *Outcome {
	e.logger.Warn("embedding provider unavailable, falling back to literal matching",
		zap.String("rule_id", rule.ID.String()),
		zap.Error(err))
	metrics.DegradedFallbacks.WithLabelValues("semantic").Inc()
	return e.literalFallback(rule, cfg, text)
}

// literalFallback substring-matches the rule's literal patterns against the
// text, tolerating small typos in single-word patterns via levenshtein
// similarity.
func (e *SemanticEvaluator) literalFallback(rule *rules.Rule, cfg *rules.SemanticLogic, text string) *Outcome {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})

	for _, pattern := range cfg.Patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if strings.Contains(text, p) {
			return fallbackOutcome(rule, pattern, 1.0)
		}
		if strings.ContainsAny(p, " \t") {
			continue
		}
		for _, token := range tokens {
			if sim := tokenSimilarity(token, p); sim >= fuzzyMatchThreshold {
				return fallbackOutcome(rule, pattern, sim)
			}
		}
	}
	return &Outcome{Matched: false}
}

func fallbackOutcome(rule *rules.Rule, pattern string, similarity float64) *Outcome {
	return &Outcome{
		Matched:  true,
		Severity: rule.BaselineSeverity(),
		Evidence: map[string]interface{}{
			"pattern":    pattern,
			"similarity": similarity,
			"fallback":   true,
		},
	}
}

// tokenSimilarity is 1 - dist/maxLen, the same normalization the sanctions
// fuzzy matcher uses.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
