// Package decision turns a run's latency statistics into a GO/NO-GO verdict
// and per-signal decision records.
package decision

import (
	"time"

	"evm-liquidation-lab/internal/metrics"
)

// Decision represents the final GO/NO-GO result.
type Decision string

const (
	DecisionGO   Decision = "GO"
	DecisionNOGO Decision = "NO-GO"
)

// Target is one latency budget: the given percentile of Metric must stay
// strictly below Limit.
type Target struct {
	Name       string
	Metric     string
	Percentile float64
	Limit      time.Duration
}

// DefaultTargets is the P99 budget of the pipeline.
func DefaultTargets() []Target {
	return []Target{
		{Name: "End-to-end", Metric: metrics.MetricEndToEnd, Percentile: 99, Limit: 10 * time.Millisecond},
		{Name: "Signal detection", Metric: metrics.MetricSignalDetection, Percentile: 99, Limit: 2 * time.Millisecond},
		{Name: "Simulation", Metric: metrics.MetricSimulation, Percentile: 99, Limit: 5 * time.Millisecond},
		{Name: "Construction", Metric: metrics.MetricConstruction, Percentile: 99, Limit: time.Millisecond},
	}
}

// TargetResult is the evaluation of one Target.
type TargetResult struct {
	Target
	Actual  time.Duration
	Present bool // false when the metric has no samples
	Pass    bool
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// DecisionResult contains the final decision with checklist.
type DecisionResult struct {
	Decision   Decision
	Targets    []TargetResult
	NOGOChecks []CriterionResult
}

// Stats is the read side of metrics.Statistics.
type Stats interface {
	Percentile(metric string, p float64) (float64, bool)
	Counts() (total, successful, failed int)
}

var _ Stats = (*metrics.Statistics)(nil)
