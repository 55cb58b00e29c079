// Package pipeline wires detection, simulation, construction and
// submission into one latency-instrumented pass per event.
package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/executor"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/simulation"
)

// progressEvery is how often RunStream and RunStress log progress.
const progressEvery = 10_000

// StressAccount holds the synthetic position RunStress liquidates.
var StressAccount = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// StressPosition returns the fixed underwater position used by RunStress:
// 5 units of collateral, 8000 USD of debt, health factor 80.
func StressPosition() domain.AccountPosition {
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return domain.AccountPosition{
		Account:      StressAccount,
		Collateral:   new(big.Int).Mul(big.NewInt(5), e18),
		Debt:         new(big.Int).Mul(big.NewInt(8000), e18),
		HealthFactor: big.NewInt(80),
		LastUpdated:  time.Now().Unix(),
	}
}

// Options configures a Harness.
type Options struct {
	// MaxEvents bounds RunStream; zero means until the channel closes.
	MaxEvents int

	// OnAttempt, when set, is called after every recorded attempt with its
	// 1-based index. It runs on the consumer goroutine.
	OnAttempt func(attempt int, out *Outcome)

	Logger *logger.Entry
}

// Outcome is what happened to one event.
type Outcome struct {
	Signal     *detector.Signal
	Simulation *simulation.Result
	Tx         *types.Transaction
	TxHash     common.Hash
	Success    bool
	Err        error // stage failure recorded against the attempt
}

// Results are the counters of a run. Events == NoSignal + Signals and
// Signals == Stats total attempts.
type Results struct {
	Events           int
	NoSignal         int
	Signals          int
	Profitable       int
	SimulationErrors int
	Stats            *metrics.Statistics
}

// Harness runs events through the pipeline one at a time. Counters
// accumulate across calls, so use one Harness per run.
type Harness struct {
	detector  *detector.Detector
	simulator *simulation.Simulator
	executor  *executor.Executor
	submitter executor.Submitter
	stats     *metrics.Statistics
	log       *logger.Entry
	maxEvents int
	onAttempt func(int, *Outcome)

	mu      sync.Mutex
	results Results
}

// New creates a Harness. A nil submitter uses a DryRunSubmitter.
func New(det *detector.Detector, sim *simulation.Simulator, exec *executor.Executor, sub executor.Submitter, opts Options) *Harness {
	log := opts.Logger
	if log == nil {
		log = logger.Component("pipeline")
	}
	if sub == nil {
		sub = executor.NewDryRunSubmitter(log)
	}
	stats := metrics.NewStatistics()
	return &Harness{
		detector:  det,
		simulator: sim,
		executor:  exec,
		submitter: sub,
		stats:     stats,
		log:       log,
		maxEvents: opts.MaxEvents,
		onAttempt: opts.OnAttempt,
		results:   Results{Stats: stats},
	}
}

// Stats returns the live aggregate. Safe to read while a run is in progress.
func (h *Harness) Stats() *metrics.Statistics {
	return h.stats
}

// Results returns a snapshot of the counters.
func (h *Harness) Results() *Results {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.results
	return &r
}

// ProcessEvent runs ev through detection and, on a signal, through the
// rest of the pipeline. Only a context error before detection completes is
// returned; stage failures land in Outcome.Err and the statistics.
func (h *Harness) ProcessEvent(ctx context.Context, ev *domain.Event) (*Outcome, error) {
	sig, err := h.detector.Process(ctx, ev)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.results.Events++
	if sig == nil {
		h.results.NoSignal++
	} else {
		h.results.Signals++
	}
	h.mu.Unlock()

	if sig == nil {
		return &Outcome{}, nil
	}
	return h.attempt(ctx, sig), nil
}

// attempt carries a signal through simulate, build and submit. It records
// exactly one row in the statistics whatever happens.
func (h *Harness) attempt(ctx context.Context, sig *detector.Signal) *Outcome {
	out := &Outcome{Signal: sig}
	defer func() {
		h.stats.Record(sig.Checkpoints, out.Success)
		h.observe(sig.Checkpoints)
		if h.onAttempt != nil {
			total, _, _ := h.stats.Counts()
			h.onAttempt(total, out)
		}
	}()

	res, err := h.simulator.Simulate(ctx, sig)
	if err != nil {
		out.Err = err
		h.mu.Lock()
		h.results.SimulationErrors++
		h.mu.Unlock()
		h.log.WithError(err).WithField("account", sig.Account.Hex()).Warn("simulation failed")
		return out
	}
	out.Simulation = res
	if !res.Profitable {
		h.log.WithFields(logger.Fields{
			"account":    sig.Account.Hex(),
			"profit_usd": res.ExpectedProfitUSD.StringFixed(2),
		}).Debug("unprofitable, skipping")
		return out
	}
	h.mu.Lock()
	h.results.Profitable++
	h.mu.Unlock()

	tx, err := h.executor.Build(ctx, sig, res)
	if err != nil {
		out.Err = err
		h.log.WithError(err).WithField("account", sig.Account.Hex()).Warn("transaction build failed")
		return out
	}
	out.Tx = tx

	hash, err := h.submitter.Submit(ctx, tx, sig.Checkpoints)
	if err != nil {
		out.Err = err
		h.log.WithError(err).WithField("account", sig.Account.Hex()).Warn("submit failed")
		return out
	}
	out.TxHash = hash
	out.Success = true

	if d, ok := sig.Checkpoints.EndToEnd(); ok {
		logger.LogStage(h.log, metrics.MetricEndToEnd, d, logger.Fields{
			"account": sig.Account.Hex(),
			"tx":      hash.Hex(),
		})
	}
	return out
}

func (h *Harness) observe(cp *metrics.Checkpoints) {
	if cp == nil {
		return
	}
	for name, us := range cp.Latencies() {
		observability.RecordStageLatency(name, us/1e6)
	}
}

// RunStream processes events in arrival order until the channel closes,
// MaxEvents is reached or ctx is cancelled. An event already taken off the
// channel is finished even if ctx is cancelled meanwhile.
func (h *Harness) RunStream(ctx context.Context, events <-chan domain.Event) (*Results, error) {
	work := context.WithoutCancel(ctx)
	processed := 0

	for {
		if h.maxEvents > 0 && processed >= h.maxEvents {
			h.log.WithField("events", processed).Info("max events reached")
			return h.Results(), nil
		}
		select {
		case <-ctx.Done():
			h.log.WithField("events", processed).Info("stream cancelled")
			return h.Results(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return h.Results(), nil
			}
			observability.UpdateQueueDepth(len(events))
			if _, err := h.ProcessEvent(work, &ev); err != nil {
				return h.Results(), err
			}
			processed++
			if processed%progressEvery == 0 {
				h.log.WithField("events", processed).Info("stream progress")
			}
		}
	}
}

// RunStress liquidates StressPosition iterations times, bypassing
// classification and position lookup.
func (h *Harness) RunStress(ctx context.Context, iterations int) (*Results, error) {
	if iterations < 0 {
		return nil, errors.New("iterations must be non-negative")
	}
	pos := StressPosition()

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return h.Results(), err
		}
		cp := metrics.NewCheckpoints()
		_ = cp.MarkDecoded()
		_ = cp.MarkSignal()
		sig := detector.NewSignal(pos, cp)

		h.mu.Lock()
		h.results.Events++
		h.results.Signals++
		h.mu.Unlock()

		h.attempt(ctx, sig)
		if (i+1)%progressEvery == 0 {
			h.log.WithField("iterations", i+1).Info("stress progress")
		}
	}
	return h.Results(), nil
}

// RunScan attempts every tracked position that is liquidatable right now,
// once each and in account order. Each one counts as an event and a signal.
func (h *Harness) RunScan(ctx context.Context) (*Results, error) {
	for _, sig := range h.detector.ScanAll() {
		if err := ctx.Err(); err != nil {
			return h.Results(), err
		}
		h.mu.Lock()
		h.results.Events++
		h.results.Signals++
		h.mu.Unlock()

		h.attempt(ctx, sig)
	}
	return h.Results(), nil
}
