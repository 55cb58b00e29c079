package ingestion

import (
	"context"
	"fmt"

	"evm-liquidation-lab/internal/chain"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/logger"
)

// MempoolOptions configures a MempoolSource.
type MempoolOptions struct {
	// MaxEvents stops the source after that many events; zero means unbounded.
	MaxEvents int
	Logger    *logger.Entry
}

// MempoolSource forwards live pending transactions from a subscriber.
type MempoolSource struct {
	sub  chain.PendingSubscriber
	opts MempoolOptions
	log  *logger.Entry
}

// NewMempoolSource wraps sub. The source does not close sub.
func NewMempoolSource(sub chain.PendingSubscriber, opts MempoolOptions) *MempoolSource {
	log := opts.Logger
	if log == nil {
		log = logger.Component("mempool_source")
	}
	return &MempoolSource{sub: sub, opts: opts, log: log}
}

// Produce forwards until ctx is done, MaxEvents is reached or the
// subscription ends, then closes out. Cancellation returns nil.
func (m *MempoolSource) Produce(ctx context.Context, out chan<- domain.Event) error {
	defer close(out)

	in, err := m.sub.SubscribePending(ctx)
	if err != nil {
		return fmt.Errorf("subscribe pending: %w", err)
	}
	m.log.Info("mempool subscription active")

	forwarded := 0
	for {
		if m.opts.MaxEvents > 0 && forwarded >= m.opts.MaxEvents {
			m.log.WithField("forwarded", forwarded).Info("mempool source reached max events")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				m.log.WithField("forwarded", forwarded).Warn("mempool subscription ended")
				return ErrSourceClosed
			}
			if err := send(ctx, out, ev); err != nil {
				return nil
			}
			forwarded++
		}
	}
}

var (
	_ Source = (*MempoolSource)(nil)
	_ Source = (*SyntheticSource)(nil)
)
