package clickhouse

import (
	"context"
	"fmt"
	"time"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/storage"
)

// SampleStore implements storage.SampleStore on the latency_samples table.
type SampleStore struct {
	conn *Conn
}

// NewSampleStore creates a new SampleStore.
func NewSampleStore(conn *Conn) *SampleStore {
	return &SampleStore{conn: conn}
}

var _ storage.SampleStore = (*SampleStore)(nil)

type sampleKey struct {
	attempt uint32
	metric  string
}

// InsertBulk adds samples. Fails the entire batch on a duplicate
// (run_id, attempt, metric), within the batch or against stored rows.
func (s *SampleStore) InsertBulk(ctx context.Context, samples []*domain.LatencySample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert_samples", time.Since(start).Seconds(), err) }()

	byRun := make(map[string]map[sampleKey]struct{})
	for _, smp := range samples {
		if !storage.ValidSample(smp) {
			return storage.ErrInvalidInput
		}
		keys, ok := byRun[smp.RunID]
		if !ok {
			keys = make(map[sampleKey]struct{})
			byRun[smp.RunID] = keys
		}
		k := sampleKey{uint32(smp.Attempt), smp.Metric}
		if _, dup := keys[k]; dup {
			return storage.ErrDuplicateKey
		}
		keys[k] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, so check stored keys per run.
	for runID, keys := range byRun {
		existing, err := s.keys(ctx, runID)
		if err != nil {
			return fmt.Errorf("check existing samples: %w", err)
		}
		for k := range keys {
			if _, dup := existing[k]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO latency_samples (run_id, attempt, metric, micros)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, smp := range samples {
		if err = batch.Append(smp.RunID, uint32(smp.Attempt), smp.Metric, smp.Micros); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves the samples of a run ordered by attempt, metric.
func (s *SampleStore) GetByRunID(ctx context.Context, runID string) (out []*domain.LatencySample, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "get_samples", time.Since(start).Seconds(), err) }()

	rows, err := s.conn.Query(ctx, `
		SELECT run_id, attempt, metric, micros
		FROM latency_samples
		WHERE run_id = ?
		ORDER BY attempt ASC, metric ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples by run id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			smp     domain.LatencySample
			attempt uint32
		)
		if err := rows.Scan(&smp.RunID, &attempt, &smp.Metric, &smp.Micros); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Attempt = int(attempt)
		out = append(out, &smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

func (s *SampleStore) keys(ctx context.Context, runID string) (map[sampleKey]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT attempt, metric FROM latency_samples WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[sampleKey]struct{})
	for rows.Next() {
		var k sampleKey
		if err := rows.Scan(&k.attempt, &k.metric); err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}
