package decision

import (
	"errors"
	"time"

	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/idhash"
	"evm-liquidation-lab/internal/simulation"
)

// ErrNoSignal is returned when a record is requested without a signal.
var ErrNoSignal = errors.New("decision record requires a signal")

// Builder constructs DecisionRecords for one run.
type Builder struct {
	runID string
	clock func() time.Time
}

// NewBuilder creates a record builder for runID.
func NewBuilder(runID string) *Builder {
	return &Builder{
		runID: runID,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build creates the record of one attempt. A nil res (simulation failed)
// yields an unprofitable record with empty amounts.
func (b *Builder) Build(attempt int, sig *detector.Signal, res *simulation.Result) (domain.DecisionRecord, error) {
	if sig == nil {
		return domain.DecisionRecord{}, ErrNoSignal
	}
	account := sig.Account.Hex()
	rec := domain.DecisionRecord{
		DecisionID:   idhash.ComputeDecisionID(b.runID, attempt, account),
		RunID:        b.runID,
		Attempt:      attempt,
		Account:      account,
		HealthFactor: sig.HealthFactor.String(),
		CreatedAt:    b.clock().UnixMilli(),
	}
	if res != nil {
		rec.DebtToCover = res.DebtToCover.String()
		rec.ExpectedProfitUSD = res.ExpectedProfitUSD.StringFixed(2)
		rec.Profitable = res.Profitable
	}
	return rec, nil
}
