// Package simulation estimates whether liquidating a signalled position pays.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/oracle"
)

var (
	// ErrPriceUnavailable is returned when no usable collateral price exists.
	// It is the only error Simulate returns for a well-formed signal.
	ErrPriceUnavailable = errors.New("collateral price unavailable")
	// ErrInvalidSignal is returned for a nil signal or a signal without debt.
	ErrInvalidSignal = errors.New("invalid signal")
)

// Defaults for the mock lending protocol.
const (
	DefaultGasUnits         = 300_000
	DefaultGasPriceGwei     = 50
	DefaultBonusNumerator   = 110
	DefaultBonusDenominator = 100

	QuickGasUnits     = 300_000
	QuickGasPriceGwei = 50
)

var (
	weiPerGwei = big.NewInt(1_000_000_000)
	one18      = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// DefaultGasPriceWei is used when the gas price lookup fails.
	DefaultGasPriceWei = new(big.Int).Mul(big.NewInt(DefaultGasPriceGwei), weiPerGwei)
)

// GasOracle supplies gas inputs.
type GasOracle interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateLiquidationGas(ctx context.Context, account common.Address, debt *big.Int) (uint64, error)
}

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	Price        oracle.PriceOracle
	Gas          GasOracle
	MinProfitUSD decimal.Decimal

	// Liquidation bonus as a ratio; zero values mean 110/100.
	BonusNumerator   int64
	BonusDenominator int64

	// RefPriceUSD is the price QuickCheck assumes; zero means oracle.DefaultPriceUSD.
	RefPriceUSD decimal.Decimal

	Logger *logger.Entry
}

// Result is the outcome of one simulation. USD fields are dollars; big.Int
// amounts keep the chain's 1e18 scale.
type Result struct {
	Profitable        bool
	ExpectedProfitUSD decimal.Decimal
	CollateralToSeize *big.Int
	DebtToCover       *big.Int
	EstimatedGas      uint64
	GasPriceWei       *big.Int
	GasCostUSD        decimal.Decimal
	PriceUSD          decimal.Decimal
	GasFallback       bool // a gas input came from defaults
}

// Simulator prices a liquidation with integer arithmetic at 1e18 scale.
// Safe for concurrent use if its oracles are.
type Simulator struct {
	price       oracle.PriceOracle
	gas         GasOracle
	minProfit   decimal.Decimal
	minProfit18 *big.Int
	bonusNum    *big.Int
	bonusDen    *big.Int
	refPrice18  *big.Int
	log         *logger.Entry
}

// NewSimulator creates a Simulator. A nil Gas oracle always uses defaults.
func NewSimulator(opts SimulatorOptions) *Simulator {
	num, den := opts.BonusNumerator, opts.BonusDenominator
	if num <= 0 || den <= 0 {
		num, den = DefaultBonusNumerator, DefaultBonusDenominator
	}
	ref := opts.RefPriceUSD
	if !ref.IsPositive() {
		ref = oracle.DefaultPriceUSD
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("simulator")
	}
	return &Simulator{
		price:       opts.Price,
		gas:         opts.Gas,
		minProfit:   opts.MinProfitUSD,
		minProfit18: toScaled(opts.MinProfitUSD),
		bonusNum:    big.NewInt(num),
		bonusDen:    big.NewInt(den),
		refPrice18:  toScaled(ref),
		log:         log,
	}
}

// MinProfitUSD returns the configured floor.
func (s *Simulator) MinProfitUSD() decimal.Decimal {
	return s.minProfit
}

// OptimizeDebtAmount picks how much debt to repay. Always the full debt.
func OptimizeDebtAmount(sig *detector.Signal) *big.Int {
	return new(big.Int).Set(sig.Debt)
}

// Simulate estimates the profit of liquidating sig in full and marks the
// simulated checkpoint. Gas lookup failures fall back to defaults; a missing
// price returns ErrPriceUnavailable.
func (s *Simulator) Simulate(ctx context.Context, sig *detector.Signal) (*Result, error) {
	if sig == nil || sig.Debt == nil {
		return nil, ErrInvalidSignal
	}
	if s.price == nil {
		observability.RecordSimulation("error")
		return nil, fmt.Errorf("%w: no price oracle configured", ErrPriceUnavailable)
	}

	priceUSD, err := s.price.PriceOfUnit(ctx)
	if err != nil {
		observability.RecordLookupFailure("price")
		observability.RecordSimulation("error")
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	price18 := toScaled(priceUSD)
	if price18.Sign() <= 0 {
		observability.RecordSimulation("error")
		return nil, fmt.Errorf("%w: non-positive price %s", ErrPriceUnavailable, priceUSD)
	}

	debt := OptimizeDebtAmount(sig)

	// collateral units worth the debt, then the bonus on top
	collateralValue := new(big.Int).Mul(debt, one18)
	collateralValue.Quo(collateralValue, price18)
	seize := new(big.Int).Mul(collateralValue, s.bonusNum)
	seize.Quo(seize, s.bonusDen)

	units, gasPrice, fallback := s.gasInputs(ctx, sig.Account, debt)
	gasUSD18 := new(big.Int).SetUint64(units)
	gasUSD18.Mul(gasUSD18, gasPrice)
	gasUSD18.Mul(gasUSD18, price18)
	gasUSD18.Quo(gasUSD18, one18)

	profit18 := new(big.Int).Mul(seize, price18)
	profit18.Quo(profit18, one18)
	profit18.Sub(profit18, debt)
	profit18.Sub(profit18, gasUSD18)

	res := &Result{
		Profitable:        profit18.Cmp(s.minProfit18) >= 0,
		ExpectedProfitUSD: decimal.NewFromBigInt(profit18, -18),
		CollateralToSeize: seize,
		DebtToCover:       debt,
		EstimatedGas:      units,
		GasPriceWei:       gasPrice,
		GasCostUSD:        decimal.NewFromBigInt(gasUSD18, -18),
		PriceUSD:          priceUSD,
		GasFallback:       fallback,
	}

	if sig.Checkpoints != nil {
		_ = sig.Checkpoints.MarkSimulated()
		if d, ok := sig.Checkpoints.Simulation(); ok {
			logger.LogStage(s.log, "simulation_us", d, logger.Fields{
				"account":    sig.Account.Hex(),
				"profit_usd": res.ExpectedProfitUSD.StringFixed(2),
				"profitable": res.Profitable,
			})
		}
	}
	if res.Profitable {
		observability.RecordSimulation("profitable")
	} else {
		observability.RecordSimulation("unprofitable")
	}
	return res, nil
}

func (s *Simulator) gasInputs(ctx context.Context, account common.Address, debt *big.Int) (uint64, *big.Int, bool) {
	units := uint64(DefaultGasUnits)
	gasPrice := new(big.Int).Set(DefaultGasPriceWei)
	fallback := false

	if s.gas == nil {
		return units, gasPrice, true
	}

	if est, err := s.gas.EstimateLiquidationGas(ctx, account, debt); err != nil || est == 0 {
		fallback = true
		observability.RecordLookupFailure("gas_estimate")
		s.log.WithError(err).WithField("account", account.Hex()).Debug("gas estimate failed, using default")
	} else {
		units = est
	}

	if p, err := s.gas.GasPrice(ctx); err != nil || p == nil || p.Sign() <= 0 {
		fallback = true
		observability.RecordLookupFailure("gas_price")
		s.log.WithError(err).Debug("gas price failed, using default")
	} else {
		gasPrice = new(big.Int).Set(p)
	}

	return units, gasPrice, fallback
}

// QuickCheck is a cheap pre-filter that never calls an oracle. It values the
// bonus on min(collateral value, debt) at the reference price and requires it
// to beat a fixed gas assumption plus the profit floor. With the oracle price
// at the reference price and actual gas cost at or below the assumption, a
// true result implies Simulate reports profitable.
func (s *Simulator) QuickCheck(sig *detector.Signal) bool {
	if sig == nil || sig.Debt == nil || sig.Debt.Sign() <= 0 {
		return false
	}

	base := new(big.Int)
	if sig.Collateral != nil {
		base.Mul(sig.Collateral, s.refPrice18)
		base.Quo(base, one18)
	}
	if base.Cmp(sig.Debt) > 0 {
		base.Set(sig.Debt)
	}

	bonus := new(big.Int).Sub(s.bonusNum, s.bonusDen)
	bonus.Mul(bonus, base)
	bonus.Quo(bonus, s.bonusDen)

	need := quickGasUSD18(s.refPrice18)
	need.Add(need, s.minProfit18)
	need.Add(need, s.roundingSlack())

	return bonus.Cmp(need) > 0
}

// roundingSlack bounds what the three floor divisions in Simulate can lose,
// in 1e-18 USD: ((num+den)/den)·price + 2.
func (s *Simulator) roundingSlack() *big.Int {
	slack := new(big.Int).Add(s.bonusNum, s.bonusDen)
	slack.Mul(slack, s.refPrice18)
	slack.Quo(slack, new(big.Int).Mul(s.bonusDen, one18))
	return slack.Add(slack, big.NewInt(2))
}

func quickGasUSD18(price18 *big.Int) *big.Int {
	g := big.NewInt(QuickGasUnits)
	g.Mul(g, big.NewInt(QuickGasPriceGwei))
	g.Mul(g, weiPerGwei)
	g.Mul(g, price18)
	return g.Quo(g, one18)
}

// toScaled converts dollars to an integer at 1e18 scale, truncating beyond 18 places.
func toScaled(d decimal.Decimal) *big.Int {
	return d.Shift(18).BigInt()
}
