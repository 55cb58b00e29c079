package main

import (
	"github.com/spf13/cobra"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/chain/stub"
)

var (
	stressIterations int
	stressPersist    bool
	stressReportDir  string
	stressReportS3   string
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Liquidate a fixed underwater position repeatedly to measure stage latency",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requirePositive("iterations", stressIterations); err != nil {
			return err
		}
		applyOfflineDefaults(cfg)
		ctx := cmd.Context()

		// Stress never touches the node; gas comes from the in-memory chain.
		price, closePrice, err := priceOracle(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePrice()

		parts, err := buildPipeline(cfg, stub.NewState(), price)
		if err != nil {
			return err
		}

		var opts backtest.Options
		if stressPersist {
			stores, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStores()
			opts.Stores = stores
		}

		log.WithField("iterations", stressIterations).Info("starting stress run")
		res, runErr := newRunner(parts, opts).Stress(ctx, stressIterations)
		if res == nil {
			return runErr
		}
		printSummary(cmd.OutOrStdout(), res)
		if err := writeReport(ctx, cfg, stressReportDir, stressReportS3, res); err != nil {
			log.WithError(err).Error("write report failed")
			if runErr == nil {
				runErr = err
			}
		}
		return runErr
	},
}

func init() {
	stressCmd.Flags().IntVar(&stressIterations, "iterations", 100_000, "Number of liquidation attempts")
	stressCmd.Flags().BoolVar(&stressPersist, "persist", false, "Persist the run to the configured stores")
	addReportFlags(stressCmd, &stressReportDir, &stressReportS3)
}
