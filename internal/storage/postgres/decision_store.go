package postgres

import (
	"context"
	"fmt"
	"time"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/storage"
)

// DecisionStore implements storage.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *Pool
}

// NewDecisionStore creates a new DecisionStore.
func NewDecisionStore(pool *Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

var _ storage.DecisionStore = (*DecisionStore)(nil)

// InsertBulk adds records atomically. Fails entire batch on any duplicate.
func (s *DecisionStore) InsertBulk(ctx context.Context, records []*domain.DecisionRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.DecisionID == "" || r.RunID == "" {
			return storage.ErrInvalidInput
		}
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "insert_decisions", time.Since(start).Seconds(), err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO decision_records (
			decision_id, run_id, attempt, account,
			health_factor, debt_to_cover, expected_profit_usd,
			profitable, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, r := range records {
		_, err = tx.Exec(ctx, query,
			r.DecisionID, r.RunID, r.Attempt, r.Account,
			r.HealthFactor, r.DebtToCover, r.ExpectedProfitUSD,
			r.Profitable, r.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert decision record: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves the records of a run ordered by attempt.
func (s *DecisionStore) GetByRunID(ctx context.Context, runID string) (out []*domain.DecisionRecord, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "get_decisions", time.Since(start).Seconds(), err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT decision_id, run_id, attempt, account,
		       health_factor, debt_to_cover, expected_profit_usd,
		       profitable, created_at
		FROM decision_records
		WHERE run_id = $1
		ORDER BY attempt ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decision records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.DecisionRecord
		if err := rows.Scan(
			&r.DecisionID, &r.RunID, &r.Attempt, &r.Account,
			&r.HealthFactor, &r.DebtToCover, &r.ExpectedProfitUSD,
			&r.Profitable, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision records: %w", err)
	}
	return out, nil
}
