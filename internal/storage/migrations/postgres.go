package migrations

import (
	"context"
	"fmt"

	"evm-liquidation-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded run and decision schema.
// Every statement is idempotent, so it is safe on each startup.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load("postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
