package main

import (
	"context"
	"errors"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/config"
	chstore "evm-liquidation-lab/internal/storage/clickhouse"
	"evm-liquidation-lab/internal/storage/migrations"
	pgstore "evm-liquidation-lab/internal/storage/postgres"
	"evm-liquidation-lab/internal/storage/sqlite"
)

var errNoStorage = errors.New("no storage configured: set SQLITE_PATH, POSTGRES_DSN or CLICKHOUSE_DSN")

// openStores picks a store per concern from the configured backends.
// SQLite holds runs and samples; Postgres, when set, takes over runs and
// adds decision records; ClickHouse, when set, takes over samples.
func openStores(ctx context.Context, c *config.Config) (backtest.Stores, func(), error) {
	var (
		stores  backtest.Stores
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if c.Storage.SQLitePath != "" {
		db, err := sqlite.Open(ctx, c.Storage.SQLitePath)
		if err != nil {
			return stores, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		stores.Runs = sqlite.NewRunStore(db)
		stores.Samples = sqlite.NewSampleStore(db)
	}

	if c.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, c.Storage.PostgresDSN)
		if err != nil {
			closeAll()
			return stores, nil, err
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			closeAll()
			return stores, nil, err
		}
		stores.Runs = pgstore.NewRunStore(pool)
		stores.Decisions = pgstore.NewDecisionStore(pool)
	}

	if c.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, c.Storage.ClickhouseDSN)
		if err != nil {
			closeAll()
			return stores, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		stores.Samples = chstore.NewSampleStore(conn)
	}

	if !stores.Enabled() {
		return stores, nil, errNoStorage
	}
	return stores, closeAll, nil
}
