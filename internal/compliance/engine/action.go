package engine

import (
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

// Default enforcement thresholds when no validator in scope configures its
// own. Conservative enough that unconfigured workspaces still block critical
// content.
const (
	defaultBlockSeverity = models.SeverityCritical
	defaultFlagSeverity  = models.SeverityHigh
)

// EffectiveThresholds resolves the block and flag severities for a rule set:
// the lowest configured threshold of each kind across all active validators,
// so the most easily triggered configuration wins.
func EffectiveThresholds(ruleset []*rules.Rule) (block, flag models.Severity) {
	block, flag = defaultBlockSeverity, defaultFlagSeverity
	for _, rule := range ruleset {
		if rule.Logic == nil || rule.Logic.Semantic == nil {
			continue
		}
		if s := models.ParseSeverity(rule.Logic.Semantic.BlockSeverity); s != models.SeverityNone && s < block {
			block = s
		}
		if s := models.ParseSeverity(rule.Logic.Semantic.FlagSeverity); s != models.SeverityNone && s < flag {
			flag = s
		}
	}
	return block, flag
}

// DecideAction converts an aggregate severity into an enforcement action.
// Only invoked on the output side of an evaluation; input-only passes report
// findings without an action.
func DecideAction(aggregate, block, flag models.Severity) models.Action {
	if aggregate == models.SeverityNone {
		return models.ActionNone
	}
	if aggregate >= block {
		return models.ActionBlocked
	}
	if aggregate >= flag {
		return models.ActionFlagged
	}
	return models.ActionNone
}
