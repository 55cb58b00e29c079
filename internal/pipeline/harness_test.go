package pipeline

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/chain/stub"
	"evm-liquidation-lab/internal/classifier"
	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/executor"
	"evm-liquidation-lab/internal/ingestion"
	"evm-liquidation-lab/internal/oracle"
	"evm-liquidation-lab/internal/position"
	"evm-liquidation-lab/internal/simulation"
)

var (
	protocol = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	alice    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixture struct {
	chain *stub.State
	cls   *classifier.Classifier
	sub   *executor.DryRunSubmitter
}

func newFixture() *fixture {
	return &fixture{
		chain: stub.NewState(),
		cls:   classifier.New(protocol, nil),
		sub:   executor.NewDryRunSubmitter(nil),
	}
}

func (f *fixture) harness(simOpts simulation.SimulatorOptions, opts Options) *Harness {
	det := detector.New(f.cls, position.NewMemoryStore(), f.chain, detector.Options{})
	if simOpts.Gas == nil {
		simOpts.Gas = f.chain
	}
	sim := simulation.NewSimulator(simOpts)
	exec := executor.New(f.cls, f.chain, executor.Options{})
	return New(det, sim, exec, f.sub, opts)
}

func (f *fixture) borrow(t *testing.T, from common.Address) *domain.Event {
	t.Helper()
	input, ok := f.cls.Encode(domain.ActionBorrow)
	require.True(t, ok)
	to := protocol
	return &domain.Event{From: from, To: &to, Input: input, ReceivedAt: time.Now()}
}

func defaultSim() simulation.SimulatorOptions {
	return simulation.SimulatorOptions{
		Price:        oracle.NewStatic(oracle.DefaultPriceUSD),
		MinProfitUSD: decimal.NewFromInt(10),
	}
}

func assertIdentities(t *testing.T, r *Results) {
	t.Helper()
	total, ok, failed := r.Stats.Counts()
	assert.Equal(t, r.Events, r.NoSignal+r.Signals)
	assert.Equal(t, r.Signals, total)
	assert.Equal(t, total, ok+failed)
}

func TestProcessEvent_ProfitableSignalIsSent(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(alice, e18(5), e18(8000), big.NewInt(80))
	h := f.harness(defaultSim(), Options{})

	out, err := h.ProcessEvent(context.Background(), f.borrow(t, alice))
	require.NoError(t, err)
	require.NotNil(t, out.Signal)
	require.NotNil(t, out.Simulation)
	assert.True(t, out.Simulation.Profitable)
	require.NotNil(t, out.Tx)
	assert.Equal(t, out.Tx.Hash(), out.TxHash)
	assert.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.EqualValues(t, 1, f.sub.Submitted())

	_, ok := out.Signal.Checkpoints.EndToEnd()
	assert.True(t, ok)

	r := h.Results()
	assert.Equal(t, 1, r.Events)
	assert.Equal(t, 1, r.Signals)
	assert.Equal(t, 1, r.Profitable)
	total, successful, _ := r.Stats.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, successful)
	assertIdentities(t, r)
}

func TestProcessEvent_HealthyIsNoSignal(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(bob, e18(1), e18(1000), big.NewInt(150))
	h := f.harness(defaultSim(), Options{})

	out, err := h.ProcessEvent(context.Background(), f.borrow(t, bob))
	require.NoError(t, err)
	assert.Nil(t, out.Signal)

	r := h.Results()
	assert.Equal(t, 1, r.NoSignal)
	assert.Equal(t, 0, r.Signals)
	assertIdentities(t, r)
}

func TestProcessEvent_UnprofitableIsFailureWithoutTx(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(alice, e18(5), e18(8000), big.NewInt(80))
	opts := defaultSim()
	opts.MinProfitUSD = decimal.NewFromInt(5000)
	h := f.harness(opts, Options{})

	out, err := h.ProcessEvent(context.Background(), f.borrow(t, alice))
	require.NoError(t, err)
	require.NotNil(t, out.Simulation)
	assert.False(t, out.Simulation.Profitable)
	assert.Nil(t, out.Tx)
	assert.False(t, out.Success)
	assert.Zero(t, f.sub.Submitted())

	_, constructed := out.Signal.Checkpoints.Construction()
	assert.False(t, constructed)

	r := h.Results()
	assert.Equal(t, 0, r.Profitable)
	_, successful, failed := r.Stats.Counts()
	assert.Equal(t, 0, successful)
	assert.Equal(t, 1, failed)
}

func TestProcessEvent_SimulationErrorIsRecorded(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(alice, e18(5), e18(8000), big.NewInt(80))
	h := f.harness(simulation.SimulatorOptions{}, Options{})

	out, err := h.ProcessEvent(context.Background(), f.borrow(t, alice))
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, simulation.ErrPriceUnavailable)

	r := h.Results()
	assert.Equal(t, 1, r.SimulationErrors)
	_, _, failed := r.Stats.Counts()
	assert.Equal(t, 1, failed)
	assertIdentities(t, r)
}

func TestProcessEvent_CancelledContext(t *testing.T) {
	f := newFixture()
	h := f.harness(defaultSim(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ProcessEvent(ctx, f.borrow(t, alice))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.Results().Events)
}

func TestRunStress(t *testing.T) {
	f := newFixture()
	h := f.harness(defaultSim(), Options{})

	r, err := h.RunStress(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, r.Events)
	assert.Equal(t, 25, r.Signals)
	assert.Equal(t, 25, r.Profitable)
	_, successful, _ := r.Stats.Counts()
	assert.Equal(t, 25, successful)
	assertIdentities(t, r)

	p99, ok := r.Stats.Percentile("end_to_end_us", 99)
	require.True(t, ok)
	assert.GreaterOrEqual(t, p99, 0.0)
}

func TestRunStress_Negative(t *testing.T) {
	h := newFixture().harness(defaultSim(), Options{})
	_, err := h.RunStress(context.Background(), -1)
	assert.Error(t, err)
}

func TestRunStream_SyntheticBacktest(t *testing.T) {
	f := newFixture()
	h := f.harness(defaultSim(), Options{})

	src, err := ingestion.NewSyntheticSource(ingestion.SyntheticOptions{
		Count:                200,
		Classifier:           f.cls,
		Seed:                 3,
		Seeder:               f.chain,
		LiquidatableFraction: 0.3,
	})
	require.NoError(t, err)

	events, errc := ingestion.Start(context.Background(), src, 16)
	r, err := h.RunStream(context.Background(), events)
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Equal(t, 200, r.Events)
	assert.Greater(t, r.Signals, 0)
	assert.Greater(t, r.NoSignal, 0)
	assertIdentities(t, r)
}

func TestRunStream_MaxEvents(t *testing.T) {
	f := newFixture()
	h := f.harness(defaultSim(), Options{MaxEvents: 3})

	events := make(chan domain.Event, 10)
	for i := 0; i < 10; i++ {
		events <- *f.borrow(t, bob)
	}
	close(events)

	r, err := h.RunStream(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Events)
	assert.Len(t, events, 7)
}

func TestRunStream_Cancelled(t *testing.T) {
	h := newFixture().harness(defaultSim(), Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := h.RunStream(ctx, make(chan domain.Event))
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunStream did not return")
	}
}

func TestRunScan_AttemptsTrackedUnderwaterPositions(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(alice, e18(5), e18(8000), big.NewInt(80))
	f.chain.SetPosition(bob, e18(1), e18(1000), big.NewInt(150))

	warm := f.harness(defaultSim(), Options{})
	for _, acct := range []common.Address{alice, bob} {
		_, err := warm.ProcessEvent(context.Background(), f.borrow(t, acct))
		require.NoError(t, err)
	}

	// the detector, and so its position table, is shared with the warm harness
	h := New(warm.detector, warm.simulator, warm.executor, f.sub, Options{})
	r, err := h.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Events)
	assert.Equal(t, 1, r.Signals)
	assert.Equal(t, 1, r.Profitable)
	assertIdentities(t, r)

	rows := r.Stats.Rows()
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], "end_to_end_us")
	assert.NotContains(t, rows[0], "decode_us")
}

func TestRunScan_Cancelled(t *testing.T) {
	f := newFixture()
	f.chain.SetPosition(alice, e18(5), e18(8000), big.NewInt(80))
	h := f.harness(defaultSim(), Options{})
	_, err := h.ProcessEvent(context.Background(), f.borrow(t, alice))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := h.RunScan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.Signals)
}
