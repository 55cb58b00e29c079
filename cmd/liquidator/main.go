// Command liquidator runs the liquidation pipeline against synthetic or live
// mempool traffic and reports its stage latencies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evm-liquidation-lab/internal/config"
	"evm-liquidation-lab/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *logger.Entry
)

var rootCmd = &cobra.Command{
	Use:   "liquidator",
	Short: "Latency-instrumented liquidation pipeline",
	Long: `liquidator detects undercollateralized lending positions from pending
transactions, prices the liquidation and builds the transaction, recording
the latency of every stage.

  liquidator backtest --events 10000 --offline
  liquidator stress --iterations 100000
  liquidator stream --max-events 5000
  liquidator report --run-id <id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") || cfg.Logging.Level == "" {
			cfg.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") || cfg.Logging.Format == "" {
			cfg.Logging.Format = logFormat
		}
		if err := logger.GetLogger().Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
			return err
		}
		log = logger.Component("liquidator")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json, text")

	rootCmd.AddCommand(backtestCmd, stressCmd, streamCmd, reportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
