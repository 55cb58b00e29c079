package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/chain/stub"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/ingestion"
	"evm-liquidation-lab/internal/logger"
)

var (
	btEvents    int
	btQueue     int
	btSeed      int64
	btFraction  float64
	btOffline   bool
	btPersist   bool
	btScan      bool
	btReportDir string
	btReportS3  string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run synthetic protocol traffic through the pipeline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requirePositive("events", btEvents); err != nil {
			return err
		}
		if !cmd.Flags().Changed("queue") && cfg.Mempool.QueueCapacity > 0 {
			btQueue = cfg.Mempool.QueueCapacity
		}
		if err := requirePositive("queue", btQueue); err != nil {
			return err
		}
		if btOffline {
			applyOfflineDefaults(cfg)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		ctx := cmd.Context()

		price, closePrice, err := priceOracle(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePrice()

		var (
			reader chain.StateReader
			seeder ingestion.PositionSeeder
		)
		if btOffline {
			state := stub.NewState()
			reader, seeder = state, state
		} else {
			reader = liveReader(cfg)
		}

		parts, err := buildPipeline(cfg, reader, price)
		if err != nil {
			return err
		}

		opts := backtest.Options{QueueCapacity: btQueue}
		if btPersist {
			stores, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStores()
			opts.Stores = stores
		}

		src, err := ingestion.NewSyntheticSource(ingestion.SyntheticOptions{
			Count:                btEvents,
			Classifier:           parts.classifier,
			Seed:                 btSeed,
			Seeder:               seeder,
			LiquidatableFraction: btFraction,
			Logger:               log.WithComponent("synthetic_source"),
		})
		if err != nil {
			return err
		}

		log.WithFields(logger.Fields{
			"events":  btEvents,
			"queue":   btQueue,
			"offline": btOffline,
			"persist": btPersist,
		}).Info("starting backtest")

		runner := newRunner(parts, opts)
		res, runErr := runner.Run(ctx, src, domain.RunModeBacktest)
		if res == nil {
			return runErr
		}
		runErr = reportRun(cmd, res, runErr)
		if !btScan || runErr != nil {
			return runErr
		}

		log.WithField("positions", parts.positions.Count()).Info("sweeping tracked positions")
		scan, scanErr := runner.Scan(ctx)
		if scan == nil {
			return scanErr
		}
		return reportRun(cmd, scan, scanErr)
	},
}

// reportRun prints res and writes its report, keeping runErr if set.
func reportRun(cmd *cobra.Command, res *backtest.Result, runErr error) error {
	printSummary(cmd.OutOrStdout(), res)
	if err := writeReport(cmd.Context(), cfg, btReportDir, btReportS3, res); err != nil {
		log.WithError(err).Error("write report failed")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func init() {
	f := backtestCmd.Flags()
	f.IntVar(&btEvents, "events", 10_000, "Number of synthetic events")
	f.IntVar(&btQueue, "queue", ingestion.DefaultCapacity, "Producer/consumer queue capacity")
	f.Int64Var(&btSeed, "seed", 1, "Seed for synthetic senders")
	f.Float64Var(&btFraction, "liquidatable", 0.3, "Fraction of offline positions that are underwater")
	f.BoolVar(&btOffline, "offline", false, "Use an in-memory chain instead of the RPC node")
	f.BoolVar(&btPersist, "persist", false, "Persist the run to the configured stores")
	f.BoolVar(&btScan, "scan", false, "After the run, sweep every tracked position as a separate scan run")
	addReportFlags(backtestCmd, &btReportDir, &btReportS3)
}
