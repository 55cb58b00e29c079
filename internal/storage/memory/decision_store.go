package memory

import (
	"context"
	"sort"
	"sync"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/storage"
)

// DecisionStore is an in-memory implementation of storage.DecisionStore.
type DecisionStore struct {
	mu   sync.RWMutex
	data map[string]domain.DecisionRecord // keyed by decision_id
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		data: make(map[string]domain.DecisionRecord),
	}
}

// InsertBulk adds records atomically. Fails entire batch on any duplicate.
func (s *DecisionStore) InsertBulk(_ context.Context, records []*domain.DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.DecisionID == "" || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.DecisionID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.DecisionID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.DecisionID] = struct{}{}
	}

	for _, r := range records {
		s.data[r.DecisionID] = *r
	}
	return nil
}

// GetByRunID retrieves the records of a run ordered by attempt.
func (s *DecisionStore) GetByRunID(_ context.Context, runID string) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	var out []*domain.DecisionRecord
	for _, r := range s.data {
		if r.RunID == runID {
			c := r
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

var _ storage.DecisionStore = (*DecisionStore)(nil)
