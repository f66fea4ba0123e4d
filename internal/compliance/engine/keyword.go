package engine

import (
	"context"
	"strings"

	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// KeywordEvaluator runs case-insensitive substring checks of literal terms
// against the subject text. Each keyword entry carries its own severity and
// stops at its first matched term; entries accumulate rather than exclude
// each other.
type KeywordEvaluator struct{}

func NewKeywordEvaluator() *KeywordEvaluator { return &KeywordEvaluator{} }

func (e *KeywordEvaluator) Type() models.RuleType { return models.RuleTypeKeyword }

func (e *KeywordEvaluator) Evaluate(_ context.Context, rule *rules.Rule, in *Input) (*Outcome, error) {
	cfg := rule.Logic.Keyword
	text := in.NormalizedText
	if text == "" {
		return &Outcome{Matched: false}, nil
	}

	severity := models.SeverityNone
	var matchedEntries []map[string]interface{}

	for _, entry := range cfg.Entries {
		for _, term := range entry.Terms {
			if term == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(term)) {
				entrySeverity := models.ParseSeverity(entry.Severity)
				if entrySeverity == models.SeverityNone {
					entrySeverity = rule.BaselineSeverity()
				}
				severity = models.MaxSeverity(severity, entrySeverity)
				matchedEntries = append(matchedEntries, map[string]interface{}{
					"term":     term,
					"severity": entrySeverity.String(),
				})
				break
			}
		}
	}

	if len(matchedEntries) == 0 {
		return &Outcome{Matched: false}, nil
	}

	return &Outcome{
		Matched:  true,
		Severity: severity,
		Evidence: map[string]interface{}{
			"keywords": matchedEntries,
		},
	}, nil
}
