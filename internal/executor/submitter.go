package executor

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/metrics"
)

// Submitter hands a built transaction to the network.
type Submitter interface {
	Submit(ctx context.Context, tx *types.Transaction, cp *metrics.Checkpoints) (common.Hash, error)
}

// DryRunSubmitter marks the transaction sent without signing or broadcasting.
// The returned hash is the keccak of the unsigned transaction.
type DryRunSubmitter struct {
	log       *logger.Entry
	submitted atomic.Int64
}

// NewDryRunSubmitter creates a DryRunSubmitter.
func NewDryRunSubmitter(log *logger.Entry) *DryRunSubmitter {
	if log == nil {
		log = logger.Component("submitter")
	}
	return &DryRunSubmitter{log: log}
}

func (s *DryRunSubmitter) Submit(ctx context.Context, tx *types.Transaction, cp *metrics.Checkpoints) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	hash := tx.Hash()
	if cp != nil {
		_ = cp.MarkSent()
	}
	s.submitted.Add(1)
	s.log.WithFields(describe(tx)).WithField("hash", hash.Hex()).Debug("dry-run submit")
	return hash, nil
}

// Submitted returns how many transactions went through Submit.
func (s *DryRunSubmitter) Submitted() int64 {
	return s.submitted.Load()
}

var _ Submitter = (*DryRunSubmitter)(nil)
