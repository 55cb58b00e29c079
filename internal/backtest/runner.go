// Package backtest drives one run end to end: a producer feeding the
// pipeline harness through a bounded queue, then the summary, the latency
// gate and optional persistence.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"evm-liquidation-lab/internal/decision"
	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/executor"
	"evm-liquidation-lab/internal/ingestion"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/pipeline"
	"evm-liquidation-lab/internal/simulation"
)

// Options configures a Runner.
type Options struct {
	// QueueCapacity bounds the producer/consumer channel. Zero means
	// ingestion.DefaultCapacity.
	QueueCapacity int

	// MaxEvents stops the consumer after that many events; zero is unbounded.
	MaxEvents int

	// Stores receives the finished run. Nil members are skipped.
	Stores Stores

	// Evaluator gates the run; nil uses decision.DefaultTargets.
	Evaluator *decision.Evaluator

	Logger   *logger.Entry
	Clock    func() time.Time
	NewRunID func() string
}

// Result is a finished run.
type Result struct {
	Summary   domain.RunSummary
	Pipeline  *pipeline.Results
	Gate      *decision.DecisionResult
	Decisions []*domain.DecisionRecord
	Rows      []map[string]float64
}

// Runner executes runs against one set of pipeline components. A fresh
// harness is built per run so counters never leak between runs.
type Runner struct {
	detector  *detector.Detector
	simulator *simulation.Simulator
	executor  *executor.Executor
	submitter executor.Submitter
	opts      Options
	log       *logger.Entry

	current atomic.Pointer[pipeline.Harness]
}

// NewRunner creates a runner. A nil submitter dry-runs.
func NewRunner(det *detector.Detector, sim *simulation.Simulator, exec *executor.Executor, sub executor.Submitter, opts Options) *Runner {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = ingestion.DefaultCapacity
	}
	if opts.Evaluator == nil {
		opts.Evaluator = decision.NewEvaluator()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("backtest")
	}
	return &Runner{
		detector:  det,
		simulator: sim,
		executor:  exec,
		submitter: sub,
		opts:      opts,
		log:       log,
	}
}

// Stats returns the statistics of the run in progress, or of the last run.
// Before any run it returns an empty aggregate.
func (r *Runner) Stats() *metrics.Statistics {
	if h := r.current.Load(); h != nil {
		return h.Stats()
	}
	return metrics.NewStatistics()
}

// run tracks the per-run state shared by Run and Stress.
type run struct {
	id        string
	mode      domain.RunMode
	started   time.Time
	harness   *pipeline.Harness
	mu        sync.Mutex
	decisions []*domain.DecisionRecord
}

func (r *Runner) begin(mode domain.RunMode) *run {
	rn := &run{
		id:      r.opts.NewRunID(),
		mode:    mode,
		started: r.opts.Clock(),
	}
	builder := decision.NewBuilder(rn.id).WithClock(r.opts.Clock)
	rn.harness = pipeline.New(r.detector, r.simulator, r.executor, r.submitter, pipeline.Options{
		MaxEvents: r.opts.MaxEvents,
		Logger:    r.log.WithField("run_id", rn.id),
		OnAttempt: func(attempt int, out *pipeline.Outcome) {
			rec, err := builder.Build(attempt, out.Signal, out.Simulation)
			if err != nil {
				return
			}
			rn.mu.Lock()
			rn.decisions = append(rn.decisions, &rec)
			rn.mu.Unlock()
		},
	})
	r.current.Store(rn.harness)

	r.log.WithFields(logger.Fields{"run_id": rn.id, "mode": mode}).Info("run started")
	return rn
}

// Run streams src through the pipeline. The producer blocks while the queue
// is full. When the consumer stops first (MaxEvents, cancellation) the
// producer is cancelled and drained.
func (r *Runner) Run(ctx context.Context, src ingestion.Source, mode domain.RunMode) (*Result, error) {
	rn := r.begin(mode)

	pctx, stop := context.WithCancel(ctx)
	events, errc := ingestion.Start(pctx, src, r.opts.QueueCapacity)

	res, runErr := rn.harness.RunStream(ctx, events)
	stop()
	srcErr := <-errc

	// our own stop() is not a producer failure
	if errors.Is(srcErr, context.Canceled) && ctx.Err() == nil {
		srcErr = nil
	}
	if runErr == nil && srcErr != nil {
		runErr = fmt.Errorf("event source: %w", srcErr)
	}
	return r.finish(ctx, rn, res, runErr)
}

// Stress re-liquidates pipeline.StressPosition iterations times.
func (r *Runner) Stress(ctx context.Context, iterations int) (*Result, error) {
	if iterations < 0 {
		return nil, fmt.Errorf("iterations must be non-negative, got %d", iterations)
	}
	rn := r.begin(domain.RunModeStress)
	res, err := rn.harness.RunStress(ctx, iterations)
	return r.finish(ctx, rn, res, err)
}

// Scan sweeps the positions the detector has tracked so far and attempts
// every liquidatable one. It is meant to follow a Run on the same Runner.
func (r *Runner) Scan(ctx context.Context) (*Result, error) {
	rn := r.begin(domain.RunModeScan)
	res, err := rn.harness.RunScan(ctx)
	return r.finish(ctx, rn, res, err)
}

func (r *Runner) finish(ctx context.Context, rn *run, res *pipeline.Results, runErr error) (*Result, error) {
	if res == nil {
		res = rn.harness.Results()
	}
	finished := r.opts.Clock()
	total, successful, failed := res.Stats.Counts()

	rn.mu.Lock()
	decisions := rn.decisions
	rn.mu.Unlock()

	out := &Result{
		Summary: domain.RunSummary{
			RunID:         rn.id,
			Mode:          rn.mode,
			StartedAt:     rn.started.UnixMilli(),
			FinishedAt:    finished.UnixMilli(),
			Events:        res.Events,
			Signals:       res.Signals,
			Profitable:    res.Profitable,
			TotalAttempts: total,
			Successful:    successful,
			Failed:        failed,
			Metrics:       res.Stats.Summary(),
		},
		Pipeline:  res,
		Gate:      r.opts.Evaluator.Evaluate(res.Stats),
		Decisions: decisions,
		Rows:      res.Stats.Rows(),
	}

	status := "ok"
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = "cancelled"
	case runErr != nil:
		status = "error"
	}
	observability.RecordRun(string(rn.mode), status, finished.Sub(rn.started).Seconds())

	// a cancelled run is still worth keeping
	if err := r.opts.Stores.Save(context.WithoutCancel(ctx), out); err != nil {
		r.log.WithError(err).WithField("run_id", rn.id).Error("persist run failed")
		if runErr == nil {
			runErr = err
		}
	}

	r.log.WithFields(logger.Fields{
		"run_id":     rn.id,
		"mode":       rn.mode,
		"status":     status,
		"events":     out.Summary.Events,
		"signals":    out.Summary.Signals,
		"successful": successful,
		"failed":     failed,
		"decision":   out.Gate.Decision,
	}).Info("run finished")
	return out, runErr
}
