package simulation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/chain/stub"
	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/oracle"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func stressSignal() *detector.Signal {
	cp := metrics.NewCheckpoints()
	_ = cp.MarkDecoded()
	_ = cp.MarkSignal()
	return &detector.Signal{
		Account:      common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Collateral:   e18(5),
		Debt:         e18(8000),
		HealthFactor: big.NewInt(80),
		Checkpoints:  cp,
	}
}

func newSim(gas GasOracle) *Simulator {
	return NewSimulator(SimulatorOptions{
		Price:        oracle.NewStatic(decimal.NewFromInt(2000)),
		Gas:          gas,
		MinProfitUSD: decimal.NewFromInt(10),
	})
}

func TestSimulate_ReferenceScenario(t *testing.T) {
	sim := newSim(stub.NewState()) // 300000 gas at 50 gwei

	res, err := sim.Simulate(context.Background(), stressSignal())
	require.NoError(t, err)

	assert.True(t, res.Profitable)
	assert.True(t, res.ExpectedProfitUSD.IsPositive())
	// 8800 seized value - 8000 debt - 30 gas
	assert.Equal(t, "770", res.ExpectedProfitUSD.String())
	assert.Equal(t, "30", res.GasCostUSD.String())
	assert.Equal(t, 0, res.CollateralToSeize.Cmp(new(big.Int).Mul(big.NewInt(44), big.NewInt(1e17))))
	assert.Equal(t, 0, res.DebtToCover.Cmp(e18(8000)))
	assert.Equal(t, uint64(300000), res.EstimatedGas)
	assert.False(t, res.GasFallback)
}

func TestSimulate_MarksSimulated(t *testing.T) {
	sig := stressSignal()
	_, err := newSim(stub.NewState()).Simulate(context.Background(), sig)
	require.NoError(t, err)

	_, ok := sig.Checkpoints.At(metrics.StageSimulated)
	assert.True(t, ok)
}

func TestSimulate_GasFailureFallsBack(t *testing.T) {
	chain := stub.NewState()
	chain.SetGasEstimate(1)
	chain.SetGasPrice(big.NewInt(1))
	chain.Fail(stub.CallEstimate, true)
	chain.Fail(stub.CallGasPrice, true)

	res, err := newSim(chain).Simulate(context.Background(), stressSignal())
	require.NoError(t, err)
	assert.True(t, res.GasFallback)
	assert.Equal(t, uint64(DefaultGasUnits), res.EstimatedGas)
	assert.Equal(t, 0, res.GasPriceWei.Cmp(DefaultGasPriceWei))
	assert.Equal(t, "770", res.ExpectedProfitUSD.String())
}

func TestSimulate_NilGasOracleUsesDefaults(t *testing.T) {
	res, err := newSim(nil).Simulate(context.Background(), stressSignal())
	require.NoError(t, err)
	assert.True(t, res.GasFallback)
	assert.True(t, res.Profitable)
}

type brokenPrice struct{}

func (brokenPrice) PriceOfUnit(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("feed down")
}

func TestSimulate_PriceFailureIsTheOnlyError(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Price: brokenPrice{}, Gas: stub.NewState()})
	_, err := sim.Simulate(context.Background(), stressSignal())
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	sim = NewSimulator(SimulatorOptions{Gas: stub.NewState()})
	_, err = sim.Simulate(context.Background(), stressSignal())
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	sim = NewSimulator(SimulatorOptions{Price: oracle.NewStatic(decimal.Zero)})
	_, err = sim.Simulate(context.Background(), stressSignal())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestSimulate_BelowFloorIsUnprofitable(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{
		Price:        oracle.NewStatic(decimal.NewFromInt(2000)),
		Gas:          stub.NewState(),
		MinProfitUSD: decimal.NewFromInt(10),
	})
	sig := stressSignal()
	sig.Debt = e18(100) // bonus 10 - gas 30 = -20

	res, err := sim.Simulate(context.Background(), sig)
	require.NoError(t, err)
	assert.False(t, res.Profitable)
	assert.Equal(t, "-20", res.ExpectedProfitUSD.String())
}

func TestSimulate_ProfitAtFloorIsProfitable(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{
		Price:        oracle.NewStatic(decimal.NewFromInt(2000)),
		Gas:          stub.NewState(),
		MinProfitUSD: decimal.NewFromInt(770),
	})
	res, err := sim.Simulate(context.Background(), stressSignal())
	require.NoError(t, err)
	assert.True(t, res.Profitable)
}

func TestSimulate_InvalidSignal(t *testing.T) {
	_, err := newSim(nil).Simulate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestOptimizeDebtAmount_FullDebtCopy(t *testing.T) {
	sig := stressSignal()
	amt := OptimizeDebtAmount(sig)
	assert.Equal(t, 0, amt.Cmp(sig.Debt))
	amt.SetInt64(0)
	assert.Equal(t, 0, sig.Debt.Cmp(e18(8000)))
}

func TestQuickCheck(t *testing.T) {
	sim := newSim(nil)

	assert.True(t, sim.QuickCheck(stressSignal()))

	small := stressSignal()
	small.Debt = e18(300) // bonus 30 vs 30 gas + 10 floor
	assert.False(t, sim.QuickCheck(small))

	thin := stressSignal()
	thin.Collateral = big.NewInt(1e17) // $200 of collateral caps the bonus at $20
	assert.False(t, sim.QuickCheck(thin))

	assert.False(t, sim.QuickCheck(nil))
	noDebt := stressSignal()
	noDebt.Debt = big.NewInt(0)
	assert.False(t, sim.QuickCheck(noDebt))
}

// Under the reference price and gas at or below the quick assumption,
// QuickCheck true must imply Simulate profitable.
func TestQuickCheck_ConservativeAgainstSimulate(t *testing.T) {
	chain := stub.NewState()
	sim := newSim(chain)
	ctx := context.Background()

	gasCases := []struct {
		units uint64
		gwei  int64
	}{
		{300000, 50},
		{150000, 50},
		{300000, 10},
		{21000, 1},
	}
	debts := []*big.Int{
		big.NewInt(1),
		e18(1),
		e18(399),
		e18(400),
		new(big.Int).Add(e18(400), big.NewInt(1)),
		e18(401),
		e18(8000),
		new(big.Int).Add(e18(123456), big.NewInt(789)),
	}
	collaterals := []*big.Int{big.NewInt(0), e18(1), e18(5), e18(1000)}

	for _, g := range gasCases {
		chain.SetGasEstimate(g.units)
		chain.SetGasPrice(new(big.Int).Mul(big.NewInt(g.gwei), big.NewInt(1e9)))
		for _, debt := range debts {
			for _, col := range collaterals {
				sig := stressSignal()
				sig.Debt = debt
				sig.Collateral = col
				if !sim.QuickCheck(sig) {
					continue
				}
				res, err := sim.Simulate(ctx, sig)
				require.NoError(t, err)
				assert.True(t, res.Profitable, "debt=%s col=%s gas=%d@%d", debt, col, g.units, g.gwei)
			}
		}
	}
}

// QuickCheck may reject what Simulate accepts when real gas is cheap.
func TestQuickCheck_FalseNegativeAllowed(t *testing.T) {
	chain := stub.NewState()
	chain.SetGasEstimate(21000)
	chain.SetGasPrice(big.NewInt(1e9))
	sim := newSim(chain)

	sig := stressSignal()
	sig.Debt = e18(350) // bonus $35

	assert.False(t, sim.QuickCheck(sig))
	res, err := sim.Simulate(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, res.Profitable)
}
