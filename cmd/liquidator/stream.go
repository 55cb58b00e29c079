package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/config"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/ingestion"
	"evm-liquidation-lab/internal/server"
)

var (
	streamMaxEvents int
	streamPersist   bool
	streamReportDir string
	streamReportS3  string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run the pipeline against the node's pending transactions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if streamMaxEvents < 0 {
			return fmt.Errorf("--max-events must not be negative, got %d", streamMaxEvents)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		ctx := cmd.Context()

		rpc := newRPCClient(cfg)
		if err := checkChainID(ctx, rpc, cfg.Chain.ChainID); err != nil {
			return err
		}

		price, closePrice, err := priceOracle(ctx, cfg)
		if err != nil {
			return err
		}
		defer closePrice()

		parts, err := buildPipeline(cfg, chain.NewBreakerReader(rpc, chain.BreakerSettings("rpc", log)), price)
		if err != nil {
			return err
		}

		wsCfg := chain.DefaultWSConfig()
		if cfg.Mempool.WSBuffer > 0 {
			wsCfg.BufferSize = cfg.Mempool.WSBuffer
		}
		ws, err := chain.NewWSClient(ctx, cfg.Chain.WSURL, &wsCfg, log.WithComponent("ws_client"))
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.Chain.WSURL, err)
		}
		defer ws.Close()

		opts := backtest.Options{QueueCapacity: cfg.Mempool.QueueCapacity}
		if streamPersist {
			stores, closeStores, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStores()
			opts.Stores = stores
		}
		runner := newRunner(parts, opts)
		src := ingestion.NewMempoolSource(ws, ingestion.MempoolOptions{
			MaxEvents: streamMaxEvents,
			Logger:    log.WithComponent("mempool_source"),
		})

		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.HTTPAddr
		srvCfg.Logger = log.WithComponent("server")
		srv := server.New(srvCfg, runner)

		// The side goroutines stop once the run returns.
		sideCtx, stopSide := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(sideCtx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error {
			healthCheck(gctx, rpc, time.Duration(cfg.Mempool.HealthCheckInterval)*time.Millisecond)
			return nil
		})

		res, runErr := runner.Run(ctx, src, domain.RunModeStream)
		stopSide()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("http server failed")
		}
		if res == nil {
			return runErr
		}
		printSummary(cmd.OutOrStdout(), res)
		if err := writeReport(context.WithoutCancel(ctx), cfg, streamReportDir, streamReportS3, res); err != nil {
			log.WithError(err).Error("write report failed")
			if runErr == nil {
				runErr = err
			}
		}
		return runErr
	},
}

func init() {
	f := streamCmd.Flags()
	f.IntVar(&streamMaxEvents, "max-events", 0, "Stop after this many events (0 = until interrupted)")
	f.BoolVar(&streamPersist, "persist", false, "Persist the run to the configured stores")
	addReportFlags(streamCmd, &streamReportDir, &streamReportS3)
}

func newRPCClient(c *config.Config) *chain.HTTPClient {
	var opts []chain.ClientOption
	if c.Chain.RequestsPerSec > 0 {
		opts = append(opts, chain.WithRateLimit(float64(c.Chain.RequestsPerSec), c.Chain.RequestsPerSec))
	}
	return chain.NewHTTPClient(c.Chain.RPCURL, c.ProtocolAddress(), opts...)
}

// liveReader is the rate-limited RPC client behind a circuit breaker.
func liveReader(c *config.Config) chain.StateReader {
	return chain.NewBreakerReader(newRPCClient(c), chain.BreakerSettings("rpc", log))
}

func checkChainID(ctx context.Context, rpc *chain.HTTPClient, want uint64) error {
	got, err := rpc.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}
	if got != want {
		return fmt.Errorf("node reports chain id %d, config expects %d", got, want)
	}
	return nil
}

// healthCheck polls the block number until ctx is done.
func healthCheck(ctx context.Context, rpc *chain.HTTPClient, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := rpc.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("node health check failed")
				}
				continue
			}
			log.WithField("block", n).Debug("node healthy")
		}
	}
}
