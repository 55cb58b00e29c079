package storage

import (
	"context"

	"evm-liquidation-lab/internal/domain"
)

// RunStore provides access to run summaries.
type RunStore interface {
	// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunSummary) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunSummary, error)

	// List returns up to limit runs, most recently started first.
	List(ctx context.Context, limit int) ([]*domain.RunSummary, error)
}

// SampleStore provides access to per-attempt latency samples.
type SampleStore interface {
	// InsertBulk adds samples. Fails entire batch on duplicate (run_id, attempt, metric).
	InsertBulk(ctx context.Context, samples []*domain.LatencySample) error

	// GetByRunID retrieves the samples of a run ordered by attempt, metric.
	GetByRunID(ctx context.Context, runID string) ([]*domain.LatencySample, error)
}

// DecisionStore provides access to per-signal decision records.
type DecisionStore interface {
	// InsertBulk adds records atomically. Fails entire batch on duplicate decision_id.
	InsertBulk(ctx context.Context, records []*domain.DecisionRecord) error

	// GetByRunID retrieves the records of a run ordered by attempt.
	GetByRunID(ctx context.Context, runID string) ([]*domain.DecisionRecord, error)
}
