// Package position holds the shared table of last-known account positions.
package position

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"evm-liquidation-lab/internal/domain"
)

// ErrLookup wraps failures of the external position lookup.
var ErrLookup = errors.New("position lookup failed")

// Lookup fetches an account's current on-chain position.
type Lookup interface {
	GetPosition(ctx context.Context, account common.Address) (collateral, debt, healthFactor *big.Int, err error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, account common.Address) (*big.Int, *big.Int, *big.Int, error)

func (f LookupFunc) GetPosition(ctx context.Context, account common.Address) (*big.Int, *big.Int, *big.Int, error) {
	return f(ctx, account)
}

// Store is a concurrent account → position table.
//
// Concurrency contract: any number of readers (Get, Count, Snapshot) may run
// together; a writer (the upsert inside Refresh, or Clear) excludes all
// readers and writers. A Refresh replaces the whole snapshot at once, so a
// reader sees either the previous snapshot or the new one, never a mix.
type Store interface {
	// Refresh fetches the account's position via lookup and upserts it.
	// On lookup failure the store is unchanged and an ErrLookup-wrapped error is returned.
	Refresh(ctx context.Context, account common.Address, lookup Lookup) error

	// Get returns a copy of the current snapshot.
	Get(account common.Address) (domain.AccountPosition, bool)

	// Clear removes every entry.
	Clear()

	// Count returns the number of tracked accounts.
	Count() int

	// Snapshot returns copies of all entries ordered by account.
	Snapshot() []domain.AccountPosition
}

// MemoryStore implements Store with a map behind a sync.RWMutex.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[common.Address]domain.AccountPosition
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[common.Address]domain.AccountPosition),
		now:       time.Now,
	}
}

// WithClock replaces the timestamp source. Test use.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Refresh fetches outside the lock so slow lookups never block readers.
func (s *MemoryStore) Refresh(ctx context.Context, account common.Address, lookup Lookup) error {
	collateral, debt, hf, err := lookup.GetPosition(ctx, account)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLookup, account.Hex(), err)
	}

	p := domain.AccountPosition{
		Account:      account,
		Collateral:   collateral,
		Debt:         debt,
		HealthFactor: hf,
		LastUpdated:  s.now().Unix(),
	}.Clone()

	s.mu.Lock()
	s.positions[account] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(account common.Address) (domain.AccountPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[account]
	if !ok {
		return domain.AccountPosition{}, false
	}
	return p.Clone(), true
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.positions = make(map[common.Address]domain.AccountPosition)
	s.mu.Unlock()
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

func (s *MemoryStore) Snapshot() []domain.AccountPosition {
	s.mu.RLock()
	out := make([]domain.AccountPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})
	return out
}

var _ Store = (*MemoryStore)(nil)
