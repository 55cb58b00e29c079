package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, mode, started_at, finished_at,
	events, signals, profitable,
	total_attempts, successful, failed, metrics`

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunSummary) (err error) {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "insert_run", time.Since(start).Seconds(), err) }()

	metrics, err := storage.EncodeMetrics(r.Metrics)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		r.RunID, string(r.Mode), r.StartedAt, r.FinishedAt,
		r.Events, r.Signals, r.Profitable,
		r.TotalAttempts, r.Successful, r.Failed, metrics,
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
	defer func() { observability.RecordDBQuery("postgres", "get_run", time.Since(start).Seconds(), err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID)
	r, err = scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, most recently started first. A
// non-positive limit returns all runs.
func (s *RunStore) List(ctx context.Context, limit int) (out []*domain.RunSummary, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "list_runs", time.Since(start).Seconds(), err) }()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id ASC`
	var rows pgx.Rows
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
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

func scanRun(row pgx.Row) (*domain.RunSummary, error) {
	var (
		r       domain.RunSummary
		mode    string
		metrics []byte
	)
	err := row.Scan(
		&r.RunID, &mode, &r.StartedAt, &r.FinishedAt,
		&r.Events, &r.Signals, &r.Profitable,
		&r.TotalAttempts, &r.Successful, &r.Failed, &metrics,
	)
	if err != nil {
		return nil, err
	}
	r.Mode = domain.RunMode(mode)
	if r.Metrics, err = storage.DecodeMetrics(metrics); err != nil {
		return nil, err
	}
	return &r, nil
}
