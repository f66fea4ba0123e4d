package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/clearlane/compliance-engine/pkg/models"
)

// PassResult is the merged outcome of one evaluation pass.
type PassResult struct {
	Passed      bool                     `json:"passed"`
	RuleMatches []uuid.UUID              `json:"rule_matches"`
	Severity    models.Severity          `json:"severity"`
	Evidence    []map[string]interface{} `json:"evidence,omitempty"`
	Degraded    bool                     `json:"degraded,omitempty"`
}

// Aggregate merges per-rule outcomes into one pass result: passed iff no rule
// matched, rule ids deduplicated, severity the maximum ordinal across
// matches. The merge is associative and insensitive to completion order; the
// id list is sorted so two passes over the same matches compare equal.
func Aggregate(outcomes []RuleOutcome) PassResult {
	result := PassResult{Passed: true, Severity: models.SeverityNone}

	seen := make(map[uuid.UUID]bool)
	for _, out := range outcomes {
		if out.Errored {
			result.Degraded = true
			continue
		}
		if !out.Matched {
			continue
		}
		result.Passed = false
		result.Severity = models.MaxSeverity(result.Severity, out.Severity)
		if !seen[out.RuleID] {
			seen[out.RuleID] = true
			result.RuleMatches = append(result.RuleMatches, out.RuleID)
		}
		if out.Evidence != nil {
			evidence := make(map[string]interface{}, len(out.Evidence)+2)
			for k, v := range out.Evidence {
				evidence[k] = v
			}
			evidence["rule_id"] = out.RuleID.String()
			evidence["rule_name"] = out.RuleName
			result.Evidence = append(result.Evidence, evidence)
		}
	}

	sort.Slice(result.RuleMatches, func(i, j int) bool {
		return result.RuleMatches[i].String() < result.RuleMatches[j].String()
	})
	sort.Slice(result.Evidence, func(i, j int) bool {
		ri, _ := result.Evidence[i]["rule_id"].(string)
		rj, _ := result.Evidence[j]["rule_id"].(string)
		return ri < rj
	})

	return result
}
