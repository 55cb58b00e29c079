package backtest

import (
	"context"
	"fmt"

	"evm-liquidation-lab/internal/decision"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/storage"
)

// Stores is where finished runs are kept.
type Stores struct {
	Runs      storage.RunStore
	Samples   storage.SampleStore
	Decisions storage.DecisionStore
}

// Enabled reports whether any store is set.
func (s Stores) Enabled() bool {
	return s.Runs != nil || s.Samples != nil || s.Decisions != nil
}

// Save writes the summary, the per-attempt samples and the decision records.
func (s Stores) Save(ctx context.Context, res *Result) error {
	if s.Runs != nil {
		summary := res.Summary
		if err := s.Runs.Insert(ctx, &summary); err != nil {
			return fmt.Errorf("save run %s: %w", res.Summary.RunID, err)
		}
	}
	if s.Samples != nil {
		if err := s.Samples.InsertBulk(ctx, storage.SamplesFromRows(res.Summary.RunID, res.Rows)); err != nil {
			return fmt.Errorf("save samples %s: %w", res.Summary.RunID, err)
		}
	}
	if s.Decisions != nil {
		if err := s.Decisions.InsertBulk(ctx, res.Decisions); err != nil {
			return fmt.Errorf("save decisions %s: %w", res.Summary.RunID, err)
		}
	}
	return nil
}

// Load rebuilds a persisted run and re-evaluates its latency gate with ev
// (nil uses the default targets). Runs and Samples are required.
func (s Stores) Load(ctx context.Context, runID string, ev *decision.Evaluator) (*Result, error) {
	if s.Runs == nil || s.Samples == nil {
		return nil, fmt.Errorf("load run: run and sample stores are required")
	}
	if ev == nil {
		ev = decision.NewEvaluator()
	}

	run, err := s.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	samples, err := s.Samples.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load samples %s: %w", runID, err)
	}
	var decisions []*domain.DecisionRecord
	if s.Decisions != nil {
		if decisions, err = s.Decisions.GetByRunID(ctx, runID); err != nil {
			return nil, fmt.Errorf("load decisions %s: %w", runID, err)
		}
	}

	rows := storage.RowsFromSamples(samples)
	stats := metrics.NewStatistics()
	for _, row := range rows {
		stats.RecordRow(row, false)
	}
	gated := storedStats{Statistics: stats, run: run}

	return &Result{
		Summary:   *run,
		Gate:      ev.Evaluate(gated),
		Decisions: decisions,
		Rows:      rows,
	}, nil
}

// storedStats answers percentiles from reloaded samples and counts from the
// stored summary, since per-attempt success is not persisted.
type storedStats struct {
	*metrics.Statistics
	run *domain.RunSummary
}

func (s storedStats) Counts() (total, successful, failed int) {
	return s.run.TotalAttempts, s.run.Successful, s.run.Failed
}
