package decision

import (
	"fmt"
	"time"
)

// Evaluator evaluates latency targets.
type Evaluator struct {
	targets []Target
}

// NewEvaluator creates an evaluator. No targets means DefaultTargets.
func NewEvaluator(targets ...Target) *Evaluator {
	if len(targets) == 0 {
		targets = DefaultTargets()
	}
	return &Evaluator{targets: targets}
}

// Targets returns the configured budgets.
func (e *Evaluator) Targets() []Target {
	out := make([]Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// Validate checks every target against stats. A metric with no samples fails.
func (e *Evaluator) Validate(stats Stats) []TargetResult {
	results := make([]TargetResult, 0, len(e.targets))
	for _, t := range e.targets {
		r := TargetResult{Target: t}
		if us, ok := stats.Percentile(t.Metric, t.Percentile); ok {
			r.Present = true
			r.Actual = time.Duration(us * float64(time.Microsecond))
			r.Pass = r.Actual < t.Limit
		}
		results = append(results, r)
	}
	return results
}

// Validate evaluates DefaultTargets against stats.
func Validate(stats Stats) []TargetResult {
	return NewEvaluator().Validate(stats)
}

// Evaluate produces a DecisionResult.
// GO if ALL targets pass and NO NO-GO triggers.
func (e *Evaluator) Evaluate(stats Stats) *DecisionResult {
	targets := e.Validate(stats)
	checks := e.evaluateNOGOTriggers(stats)

	decision := DecisionGO
	for _, t := range targets {
		if !t.Pass {
			decision = DecisionNOGO
		}
	}
	for _, c := range checks {
		if !c.Pass { // Pass=false means triggered
			decision = DecisionNOGO
		}
	}

	return &DecisionResult{
		Decision:   decision,
		Targets:    targets,
		NOGOChecks: checks,
	}
}

// evaluateNOGOTriggers evaluates the run-level triggers.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) evaluateNOGOTriggers(stats Stats) []CriterionResult {
	total, successful, _ := stats.Counts()

	return []CriterionResult{
		{
			Name:      "No attempts recorded",
			Threshold: "attempts == 0",
			Actual:    fmt.Sprintf("%d", total),
			Pass:      total > 0,
		},
		{
			Name:      "No successful attempts",
			Threshold: "successful == 0",
			Actual:    fmt.Sprintf("%d", successful),
			Pass:      successful > 0,
		},
	}
}
