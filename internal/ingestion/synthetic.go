package ingestion

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/classifier"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/logger"
)

// PositionSeeder receives the position of every synthetic sender. stub.State satisfies it.
type PositionSeeder interface {
	SetPosition(account common.Address, collateral, debt, healthFactor *big.Int)
}

// SyntheticOptions configures a SyntheticSource.
type SyntheticOptions struct {
	Count      int
	Classifier *classifier.Classifier
	Seed       int64

	// Seeder, when set, gets a position for every sender before its event
	// is queued. LiquidatableFraction in [0,1] of them are underwater.
	Seeder               PositionSeeder
	LiquidatableFraction float64

	Logger *logger.Entry
}

// SyntheticSource generates protocol traffic with sequential nonces and a
// fresh random sender per transaction.
type SyntheticSource struct {
	opts SyntheticOptions
	rng  *rand.Rand
	log  *logger.Entry
}

var (
	ether       = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	synthGas    = big.NewInt(50_000_000_000)
	borrowAmt   = new(big.Int).Mul(big.NewInt(1000), ether)
	withdrawAmt = new(big.Int).Div(ether, big.NewInt(2))
	repayAmt    = new(big.Int).Mul(big.NewInt(500), ether)

	underwaterCollateral = new(big.Int).Mul(big.NewInt(5), ether)
	underwaterDebt       = new(big.Int).Mul(big.NewInt(8000), ether)
	healthyCollateral    = new(big.Int).Mul(big.NewInt(10), ether)
	healthyDebt          = new(big.Int).Mul(big.NewInt(5000), ether)
)

// NewSyntheticSource creates a generator. Classifier is required.
func NewSyntheticSource(opts SyntheticOptions) (*SyntheticSource, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("synthetic source: classifier is required")
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("synthetic source: negative count %d", opts.Count)
	}
	if opts.LiquidatableFraction < 0 || opts.LiquidatableFraction > 1 {
		return nil, fmt.Errorf("synthetic source: liquidatable fraction %v outside [0,1]", opts.LiquidatableFraction)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("synthetic_source")
	}
	return &SyntheticSource{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		log:  log,
	}, nil
}

// KindForNonce maps a nonce onto the synthetic action mix.
func KindForNonce(nonce uint64) domain.ActionKind {
	switch nonce % 10 {
	case 0, 1, 2, 3:
		return domain.ActionDeposit
	case 4, 5, 6:
		return domain.ActionBorrow
	case 7, 8:
		return domain.ActionWithdraw
	default:
		return domain.ActionRepay
	}
}

// Produce emits Count events and closes out. Not safe for concurrent calls.
func (s *SyntheticSource) Produce(ctx context.Context, out chan<- domain.Event) error {
	defer close(out)

	s.log.WithField("count", s.opts.Count).Info("starting synthetic stream")
	for i := 0; i < s.opts.Count; i++ {
		ev, err := s.next(uint64(i))
		if err != nil {
			return err
		}
		if err := send(ctx, out, ev); err != nil {
			s.log.WithField("produced", i).Info("synthetic stream cancelled")
			return err
		}
	}
	s.log.WithField("count", s.opts.Count).Info("synthetic stream complete")
	return nil
}

func (s *SyntheticSource) next(nonce uint64) (domain.Event, error) {
	var sender common.Address
	s.rng.Read(sender[:])

	kind := KindForNonce(nonce)
	var (
		input []byte
		ok    bool
	)
	switch kind {
	case domain.ActionDeposit:
		input, ok = s.opts.Classifier.Encode(kind)
	case domain.ActionBorrow:
		input, ok = s.opts.Classifier.Encode(kind, chain.UintWord(borrowAmt))
	case domain.ActionWithdraw:
		input, ok = s.opts.Classifier.Encode(kind, chain.UintWord(withdrawAmt))
	default:
		input, ok = s.opts.Classifier.Encode(kind, chain.UintWord(repayAmt))
	}
	if !ok {
		return domain.Event{}, fmt.Errorf("synthetic source: no selector for %s", kind)
	}

	if s.opts.Seeder != nil {
		if s.rng.Float64() < s.opts.LiquidatableFraction {
			s.opts.Seeder.SetPosition(sender, underwaterCollateral, underwaterDebt, big.NewInt(80))
		} else {
			s.opts.Seeder.SetPosition(sender, healthyCollateral, healthyDebt, big.NewInt(400))
		}
	}

	to := s.opts.Classifier.Protocol()
	return domain.Event{
		Hash:     nonceHash(nonce),
		From:     sender,
		To:       &to,
		Input:    input,
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(synthGas),
	}, nil
}

func nonceHash(nonce uint64) common.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], nonce)
	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	return common.BytesToHash(h.Sum(nil))
}
