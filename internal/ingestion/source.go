// Package ingestion produces pending-transaction events for the pipeline.
package ingestion

import (
	"context"
	"errors"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/observability"
)

// DefaultCapacity is the default size of the queue between a source and the pipeline.
const DefaultCapacity = 1000

// ErrSourceClosed is returned when the upstream feed ends before the source is done.
var ErrSourceClosed = errors.New("source closed")

// Source writes events to out and closes out when it returns.
// A full out blocks the source.
type Source interface {
	Produce(ctx context.Context, out chan<- domain.Event) error
}

// Start runs src on its own goroutine and returns the queue it writes to
// plus a channel carrying its terminal error.
func Start(ctx context.Context, src Source, capacity int) (<-chan domain.Event, <-chan error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	out := make(chan domain.Event, capacity)
	errc := make(chan error, 1)
	go func() {
		errc <- src.Produce(ctx, out)
		close(errc)
	}()
	return out, errc
}

// send blocks until ev is queued or ctx is done.
func send(ctx context.Context, out chan<- domain.Event, ev domain.Event) error {
	select {
	case out <- ev:
		observability.UpdateQueueDepth(len(out))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
