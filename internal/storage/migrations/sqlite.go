package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// RunSQLiteMigrations applies the embedded SQLite schema to db.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	files, err := load("sqlite")
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
