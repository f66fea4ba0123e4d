package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationsTotal counts completed evaluation passes by category and outcome
// (passed/failed).
var EvaluationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_evaluations_total",
		Help: "Total number of completed evaluation passes",
	},
	[]string{"category", "outcome"},
)

// RuleMatches counts individual rule matches by severity.
var RuleMatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_rule_matches_total",
		Help: "Total number of rule matches by severity",
	},
	[]string{"severity"},
)

// EvaluatorErrors counts isolated per-rule evaluation failures by rule type.
var EvaluatorErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_evaluator_errors_total",
		Help: "Total number of per-rule evaluator failures (fail-open)",
	},
	[]string{"rule_type"},
)

// ActionsTotal counts enforcement decisions on the output path.
var ActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_actions_total",
		Help: "Total number of enforcement actions decided",
	},
	[]string{"action"},
)

// DegradedFallbacks counts fail-open degradations of external dependencies.
var DegradedFallbacks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_degraded_fallbacks_total",
		Help: "Total number of degraded-mode fallbacks by component",
	},
	[]string{"component"},
)

// PassLatency records evaluation pass latency.
var PassLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "compliance_pass_latency_seconds",
		Help:    "Latency in seconds of one evaluation pass",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"category"},
)

// LimitChecks counts trading-limit decisions.
var LimitChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "compliance_limit_checks_total",
		Help: "Total number of trading limit checks by decision",
	},
	[]string{"decision"},
)

func init() {
	prometheus.MustRegister(EvaluationsTotal, RuleMatches, EvaluatorErrors)
	prometheus.MustRegister(ActionsTotal, DegradedFallbacks, PassLatency, LimitChecks)
}
