// Package detector turns classified protocol events into liquidation signals.
package detector

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-liquidation-lab/internal/classifier"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/observability"
	"evm-liquidation-lab/internal/position"
)

// State is the tracked state of one account.
type State int

const (
	Untracked State = iota
	Healthy
	Liquidatable
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Liquidatable:
		return "liquidatable"
	default:
		return "untracked"
	}
}

// Signal reports one account below the liquidation threshold. Immutable
// after creation except for its Checkpoints, which the owning pipeline pass
// keeps marking.
type Signal struct {
	Account      common.Address
	Collateral   *big.Int
	Debt         *big.Int
	HealthFactor *big.Int
	Trigger      common.Hash // zero for scan signals
	Checkpoints  *metrics.Checkpoints
}

// NewSignal builds a signal from a stored position.
func NewSignal(p domain.AccountPosition, cp *metrics.Checkpoints) *Signal {
	p = p.Clone()
	return &Signal{
		Account:      p.Account,
		Collateral:   p.Collateral,
		Debt:         p.Debt,
		HealthFactor: p.HealthFactor,
		Checkpoints:  cp,
	}
}

// Options configures a Detector.
type Options struct {
	Logger *logger.Entry
}

// Detector refreshes positions on state-changing events and emits a Signal
// when the refreshed position is liquidatable. Process must be called by one
// consumer at a time; the store may be read concurrently.
type Detector struct {
	classifier *classifier.Classifier
	store      position.Store
	lookup     position.Lookup
	log        *logger.Entry
}

// New creates a Detector.
func New(c *classifier.Classifier, store position.Store, lookup position.Lookup, opts Options) *Detector {
	log := opts.Logger
	if log == nil {
		log = logger.Component("detector")
	}
	return &Detector{
		classifier: c,
		store:      store,
		lookup:     lookup,
		log:        log,
	}
}

// Store returns the position store.
func (d *Detector) Store() position.Store {
	return d.store
}

// Process runs one event through detection. It returns nil for events that
// are not for the protocol, carry an unknown selector, fail the position
// lookup, or leave the account healthy. Only context cancellation is an error.
func (d *Detector) Process(ctx context.Context, ev *domain.Event) (*Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage timing starts at dequeue. Wire arrival only feeds the queue-wait
	// histogram, so buffered backlog never shows up as decode latency.
	cp := metrics.NewCheckpoints()
	if ev != nil && !ev.ReceivedAt.IsZero() {
		observability.RecordQueueWait(max(cp.Received().Sub(ev.ReceivedAt), 0).Seconds())
	}

	if !d.classifier.IsTarget(ev) {
		observability.RecordIgnored("not_target")
		return nil, nil
	}
	kind, ok := d.classifier.Classify(ev)
	if !ok {
		observability.RecordIgnored("unknown_selector")
		return nil, nil
	}
	_ = cp.MarkDecoded()
	observability.RecordEvent(kind.String())

	account := d.classifier.ActingAccount(ev)
	if !kind.ChangesPosition() {
		account = d.classifier.LiquidatedAccount(ev)
	}

	if err := d.store.Refresh(ctx, account, d.lookup); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.RecordLookupFailure("position")
		d.log.WithError(err).WithFields(logger.Fields{
			"account": account.Hex(),
			"action":  kind.String(),
			"tx":      ev.Hash.Hex(),
		}).Warn("position refresh failed, skipping event")
		return nil, nil
	}
	observability.UpdatePositionsTracked(d.store.Count())

	// Someone else already liquidated; keep the table current, never signal.
	if !kind.ChangesPosition() {
		return nil, nil
	}

	p, ok := d.store.Get(account)
	if !ok || !p.IsLiquidatable() {
		return nil, nil
	}

	_ = cp.MarkSignal()
	observability.RecordSignal()

	sig := NewSignal(p, cp)
	sig.Trigger = ev.Hash
	if dur, ok := cp.SignalDetection(); ok {
		logger.LogStage(d.log, metrics.MetricSignalDetection, dur, logger.Fields{
			"account":       account.Hex(),
			"health_factor": p.HealthFactor.String(),
		})
	}
	return sig, nil
}

// State reports the tracked state of account.
func (d *Detector) State(account common.Address) State {
	p, ok := d.store.Get(account)
	switch {
	case !ok:
		return Untracked
	case p.IsLiquidatable():
		return Liquidatable
	default:
		return Healthy
	}
}

// ScanAll emits a Signal for every tracked account that is currently
// liquidatable, ordered by account.
func (d *Detector) ScanAll() []*Signal {
	var out []*Signal
	for _, p := range d.store.Snapshot() {
		if !p.IsLiquidatable() {
			continue
		}
		// nothing was decoded, so only the signal is marked
		cp := metrics.NewCheckpoints()
		_ = cp.MarkSignal()
		out = append(out, NewSignal(p, cp))
	}
	return out
}
