package sqlite

import (
	"context"
	"fmt"
	"time"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/storage"
)

// SampleStore implements storage.SampleStore on SQLite.
type SampleStore struct {
	db *DB
}

// NewSampleStore creates a new SampleStore.
func NewSampleStore(db *DB) *SampleStore {
	return &SampleStore{db: db}
}

var _ storage.SampleStore = (*SampleStore)(nil)

// InsertBulk adds samples in one transaction. Fails entire batch on any
// duplicate (run_id, attempt, metric).
func (s *SampleStore) InsertBulk(ctx context.Context, samples []*domain.LatencySample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	for _, smp := range samples {
		if !storage.ValidSample(smp) {
			return storage.ErrInvalidInput
		}
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("sqlite", "insert_samples", time.Since(start).Seconds(), err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO latency_samples (run_id, attempt, metric, micros) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err = stmt.ExecContext(ctx, smp.RunID, smp.Attempt, smp.Metric, smp.Micros); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves the samples of a run ordered by attempt, metric.
func (s *SampleStore) GetByRunID(ctx context.Context, runID string) (out []*domain.LatencySample, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("sqlite", "get_samples", time.Since(start).Seconds(), err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, attempt, metric, micros
		FROM latency_samples
		WHERE run_id = ?
		ORDER BY attempt ASC, metric ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var smp domain.LatencySample
		if err := rows.Scan(&smp.RunID, &smp.Attempt, &smp.Metric, &smp.Micros); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, &smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}
