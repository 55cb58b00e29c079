package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/storage"
)

// RunStore implements storage.RunStore on SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `run_id, mode, started_at, finished_at, events, signals, profitable,
	total_attempts, successful, failed, metrics`

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunSummary) (err error) {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("sqlite", "insert_run", time.Since(start).Seconds(), err) }()

	metrics, err := storage.EncodeMetrics(r.Metrics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, string(r.Mode), r.StartedAt, r.FinishedAt, r.Events, r.Signals, r.Profitable,
		r.TotalAttempts, r.Successful, r.Failed, string(metrics),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (r *domain.RunSummary, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("sqlite", "get_run", time.Since(start).Seconds(), err) }()

	r, err = scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, most recently started first.
func (s *RunStore) List(ctx context.Context, limit int) (out []*domain.RunSummary, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("sqlite", "list_runs", time.Since(start).Seconds(), err) }()

	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.RunSummary, error) {
	var (
		r       domain.RunSummary
		mode    string
		metrics string
	)
	if err := row.Scan(&r.RunID, &mode, &r.StartedAt, &r.FinishedAt, &r.Events, &r.Signals,
		&r.Profitable, &r.TotalAttempts, &r.Successful, &r.Failed, &metrics); err != nil {
		return nil, err
	}
	r.Mode = domain.RunMode(mode)
	m, err := storage.DecodeMetrics([]byte(metrics))
	if err != nil {
		return nil, err
	}
	r.Metrics = m
	return &r, nil
}
