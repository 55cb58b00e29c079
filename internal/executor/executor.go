// Package executor builds liquidation transactions and hands them to a submitter.
package executor

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/classifier"
	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/simulation"
)

// Transaction defaults for the mock protocol.
const (
	DefaultGasLimit        = 350_000
	DefaultPriorityFeeGwei = 2
	DefaultMaxGasPriceGwei = 100
	DefaultChainID         = 31337
)

var (
	// ErrNoSimulation is returned when Build is called without a result.
	ErrNoSimulation = errors.New("no simulation result")
	// ErrNoLiquidateSelector is returned when the classifier table lacks liquidate.
	ErrNoLiquidateSelector = errors.New("no liquidate selector")
)

var weiPerGwei = big.NewInt(1_000_000_000)

// FeeSource supplies the base fee for EIP-1559 pricing.
type FeeSource interface {
	BaseFee(ctx context.Context) (*big.Int, error)
}

// Options configures an Executor.
type Options struct {
	ChainID         uint64
	GasLimit        uint64
	PriorityFeeGwei uint64
	MaxGasPriceGwei uint64
	Logger          *logger.Entry
}

// Executor turns a profitable simulation into an unsigned dynamic-fee
// transaction calling liquidate(address,uint256) on the protocol.
type Executor struct {
	cls      *classifier.Classifier
	fees     FeeSource
	chainID  *big.Int
	gasLimit uint64
	tip      *big.Int
	feeCap   *big.Int
	log      *logger.Entry
}

// New creates an Executor. Zero options take the package defaults.
func New(cls *classifier.Classifier, fees FeeSource, opts Options) *Executor {
	if opts.ChainID == 0 {
		opts.ChainID = DefaultChainID
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	if opts.PriorityFeeGwei == 0 {
		opts.PriorityFeeGwei = DefaultPriorityFeeGwei
	}
	if opts.MaxGasPriceGwei == 0 {
		opts.MaxGasPriceGwei = DefaultMaxGasPriceGwei
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("executor")
	}
	return &Executor{
		cls:      cls,
		fees:     fees,
		chainID:  new(big.Int).SetUint64(opts.ChainID),
		gasLimit: opts.GasLimit,
		tip:      gwei(opts.PriorityFeeGwei),
		feeCap:   gwei(opts.MaxGasPriceGwei),
		log:      log,
	}
}

// Fees returns (maxFeePerGas, maxPriorityFeePerGas) for baseFee:
// min(2·baseFee + tip, cap), with the tip never above the max fee.
func (e *Executor) Fees(baseFee *big.Int) (*big.Int, *big.Int) {
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, e.tip)
	if maxFee.Cmp(e.feeCap) > 0 {
		maxFee.Set(e.feeCap)
	}
	tip := new(big.Int).Set(e.tip)
	if tip.Cmp(maxFee) > 0 {
		tip.Set(maxFee)
	}
	return maxFee, tip
}

// Build constructs the liquidation transaction for sig and marks the
// constructed checkpoint. A base fee lookup failure falls back to the
// simulated gas price.
func (e *Executor) Build(ctx context.Context, sig *detector.Signal, res *simulation.Result) (*types.Transaction, error) {
	if res == nil || res.DebtToCover == nil {
		return nil, ErrNoSimulation
	}

	data, ok := e.cls.Encode(domain.ActionLiquidate, chain.AddressWord(sig.Account), chain.UintWord(res.DebtToCover))
	if !ok {
		return nil, ErrNoLiquidateSelector
	}

	baseFee, err := e.baseFee(ctx, res)
	if err != nil {
		return nil, err
	}
	maxFee, tip := e.Fees(baseFee)

	to := e.cls.Protocol()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Gas:       e.gasLimit,
		GasFeeCap: maxFee,
		GasTipCap: tip,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})

	if sig.Checkpoints != nil {
		_ = sig.Checkpoints.MarkConstructed()
		if d, ok := sig.Checkpoints.Construction(); ok {
			logger.LogStage(e.log, "construction_us", d, logger.Fields{
				"account":      sig.Account.Hex(),
				"max_fee_gwei": new(big.Int).Quo(maxFee, weiPerGwei).String(),
			})
		}
	}
	return tx, nil
}

func (e *Executor) baseFee(ctx context.Context, res *simulation.Result) (*big.Int, error) {
	if e.fees != nil {
		fee, err := e.fees.BaseFee(ctx)
		if err == nil && fee != nil {
			return fee, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.WithError(err).Debug("base fee lookup failed, using simulated gas price")
	}
	if res.GasPriceWei != nil && res.GasPriceWei.Sign() > 0 {
		return res.GasPriceWei, nil
	}
	return simulation.DefaultGasPriceWei, nil
}

func gwei(n uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(n), weiPerGwei)
}

// describe renders the fields logged for a built transaction.
func describe(tx *types.Transaction) logger.Fields {
	return logger.Fields{
		"to":        tx.To().Hex(),
		"gas":       tx.Gas(),
		"max_fee":   tx.GasFeeCap().String(),
		"tip":       tx.GasTipCap().String(),
		"chain_id":  tx.ChainId().String(),
		"data_size": len(tx.Data()),
	}
}
