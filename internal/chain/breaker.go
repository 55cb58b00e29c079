package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"

	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/observability"
)

// BreakerSettings returns the trip policy for node calls: open after three
// consecutive failures or a 5% failure rate over at least 20 requests.
func BreakerSettings(name string, log *logger.Entry) gobreaker.Settings {
	if log == nil {
		log = logger.Component("breaker")
	}
	return gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.UpdateBreakerState(name, int(to))
			log.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
	}
}

// BreakerReader guards a StateReader with a circuit breaker. While open,
// calls fail fast with gobreaker.ErrOpenState.
type BreakerReader struct {
	inner StateReader
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerReader wraps inner.
func NewBreakerReader(inner StateReader, settings gobreaker.Settings) *BreakerReader {
	return &BreakerReader{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the breaker state.
func (b *BreakerReader) State() gobreaker.State {
	return b.cb.State()
}

type positionResult struct {
	collateral, debt, hf *big.Int
}

func (b *BreakerReader) GetPosition(ctx context.Context, account common.Address) (*big.Int, *big.Int, *big.Int, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		c, d, hf, err := b.inner.GetPosition(ctx, account)
		if err != nil {
			return nil, err
		}
		return positionResult{c, d, hf}, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	r := v.(positionResult)
	return r.collateral, r.debt, r.hf, nil
}

func (b *BreakerReader) GasPrice(ctx context.Context) (*big.Int, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

func (b *BreakerReader) EstimateLiquidationGas(ctx context.Context, account common.Address, debt *big.Int) (uint64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.EstimateLiquidationGas(ctx, account, debt)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (b *BreakerReader) BaseFee(ctx context.Context) (*big.Int, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.BaseFee(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

var _ StateReader = (*BreakerReader)(nil)
