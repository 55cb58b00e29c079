package main

import (
	"context"
	"fmt"

	"evm-liquidation-lab/internal/backtest"
	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/classifier"
	"evm-liquidation-lab/internal/config"
	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/executor"
	"evm-liquidation-lab/internal/oracle"
	"evm-liquidation-lab/internal/position"
	"evm-liquidation-lab/internal/simulation"
)

// Anvil's first two deployments from the default account; used offline when
// no addresses are configured.
const (
	offlineProtocol = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	offlineToken    = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

func applyOfflineDefaults(c *config.Config) {
	if c.Chain.ProtocolAddress == "" {
		c.Chain.ProtocolAddress = offlineProtocol
	}
	if c.Chain.TokenAddress == "" {
		c.Chain.TokenAddress = offlineToken
	}
}

// pipelineParts is everything a Runner needs besides its options.
type pipelineParts struct {
	classifier *classifier.Classifier
	detector   *detector.Detector
	simulator  *simulation.Simulator
	executor   *executor.Executor
	positions  *position.MemoryStore
}

// buildPipeline wires the stages over reader, pricing with price.
func buildPipeline(c *config.Config, reader chain.StateReader, price oracle.PriceOracle) (*pipelineParts, error) {
	minProfit, err := c.MinProfit()
	if err != nil {
		return nil, err
	}

	cls := classifier.New(c.ProtocolAddress(), nil)
	positions := position.NewMemoryStore()
	return &pipelineParts{
		classifier: cls,
		positions:  positions,
		detector:   detector.New(cls, positions, reader, detector.Options{}),
		simulator: simulation.NewSimulator(simulation.SimulatorOptions{
			Price:        price,
			Gas:          reader,
			MinProfitUSD: minProfit,
		}),
		executor: executor.New(cls, reader, executor.Options{
			ChainID:         c.Chain.ChainID,
			MaxGasPriceGwei: c.Strategy.MaxGasPriceGwei,
		}),
	}, nil
}

// priceOracle is Redis when configured, falling back to the static price.
// The returned close func is never nil.
func priceOracle(ctx context.Context, c *config.Config) (oracle.PriceOracle, func(), error) {
	price, err := c.Price()
	if err != nil {
		return nil, nil, err
	}
	static := oracle.NewStatic(price)
	if c.Oracle.RedisURL == "" {
		return static, func() {}, nil
	}

	rd, err := oracle.DialRedis(ctx, c.Oracle.RedisURL, c.Oracle.Symbol)
	if err != nil {
		log.WithError(err).Warn("redis price feed unavailable, using static price")
		return static, func() {}, nil
	}
	log.WithField("symbol", c.Oracle.Symbol).Info("using redis price feed")
	return oracle.NewFallback(rd, static), func() { _ = rd.Close() }, nil
}

func newRunner(p *pipelineParts, opts backtest.Options) *backtest.Runner {
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("runner")
	}
	return backtest.NewRunner(p.detector, p.simulator, p.executor, nil, opts)
}

func requirePositive(name string, n int) error {
	if n <= 0 {
		return fmt.Errorf("--%s must be positive, got %d", name, n)
	}
	return nil
}
