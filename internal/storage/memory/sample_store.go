package memory

import (
	"context"
	"sort"
	"sync"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/storage"
)

type sampleKey struct {
	runID   string
	attempt int
	metric  string
}

// SampleStore is an in-memory implementation of storage.SampleStore.
type SampleStore struct {
	mu   sync.RWMutex
	data map[sampleKey]domain.LatencySample
}

// NewSampleStore creates a new in-memory sample store.
func NewSampleStore() *SampleStore {
	return &SampleStore{
		data: make(map[sampleKey]domain.LatencySample),
	}
}

// InsertBulk adds samples atomically. Fails entire batch on any duplicate.
func (s *SampleStore) InsertBulk(_ context.Context, samples []*domain.LatencySample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[sampleKey]struct{}, len(samples))
	for _, smp := range samples {
		if !storage.ValidSample(smp) {
			return storage.ErrInvalidInput
		}
		k := sampleKey{smp.RunID, smp.Attempt, smp.Metric}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, smp := range samples {
		s.data[sampleKey{smp.RunID, smp.Attempt, smp.Metric}] = *smp
	}
	return nil
}

// GetByRunID retrieves the samples of a run ordered by attempt, metric.
func (s *SampleStore) GetByRunID(_ context.Context, runID string) ([]*domain.LatencySample, error) {
	s.mu.RLock()
	var out []*domain.LatencySample
	for k, v := range s.data {
		if k.runID == runID {
			c := v
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempt != out[j].Attempt {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].Metric < out[j].Metric
	})
	return out, nil
}

var _ storage.SampleStore = (*SampleStore)(nil)
