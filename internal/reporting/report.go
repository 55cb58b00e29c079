// Package reporting renders run results as CSV, JSON and Markdown and
// ships them to a Sink.
package reporting

import (
	"time"

	"evm-liquidation-lab/internal/decision"
	"evm-liquidation-lab/internal/domain"
)

// Report is everything written for one run.
type Report struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Run         domain.RunSummary          `json:"run"`
	Decision    decision.Decision          `json:"decision"`
	Targets     []TargetRow                `json:"targets"`
	Triggers    []decision.CriterionResult `json:"triggers"`
	Attempts    []map[string]float64       `json:"attempts,omitempty"`
}

// TargetRow is one latency target as reported.
type TargetRow struct {
	Name       string  `json:"name"`
	Metric     string  `json:"metric"`
	Percentile float64 `json:"percentile"`
	LimitUs    float64 `json:"limit_us"`
	ActualUs   float64 `json:"actual_us"`
	Present    bool    `json:"present"`
	Pass       bool    `json:"pass"`
}

// NewReport assembles a report. gate may be nil when no evaluation ran.
func NewReport(run domain.RunSummary, gate *decision.DecisionResult, attempts []map[string]float64, now time.Time) *Report {
	r := &Report{
		GeneratedAt: now.UTC(),
		Run:         run,
		Attempts:    attempts,
	}
	if gate == nil {
		return r
	}
	r.Decision = gate.Decision
	r.Triggers = gate.NOGOChecks
	for _, t := range gate.Targets {
		r.Targets = append(r.Targets, TargetRow{
			Name:       t.Name,
			Metric:     t.Metric,
			Percentile: t.Percentile,
			LimitUs:    float64(t.Limit) / float64(time.Microsecond),
			ActualUs:   float64(t.Actual) / float64(time.Microsecond),
			Present:    t.Present,
			Pass:       t.Pass,
		})
	}
	return r
}
