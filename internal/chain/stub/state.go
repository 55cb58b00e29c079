// Package stub provides an in-memory chain for offline runs and tests.
package stub

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"evm-liquidation-lab/internal/chain"
)

// ErrNotFound is returned for an account with no position.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned by a call switched off with Fail.
var ErrUnavailable = errors.New("stub: unavailable")

// Call names for Fail.
const (
	CallPosition = "position"
	CallGasPrice = "gas_price"
	CallEstimate = "estimate"
	CallBaseFee  = "base_fee"
)

// Position is a raw getPosition return.
type Position struct {
	Collateral   *big.Int
	Debt         *big.Int
	HealthFactor *big.Int
}

// State implements chain.StateReader in memory. Safe for concurrent use.
type State struct {
	mu          sync.RWMutex
	positions   map[common.Address]Position
	gasPrice    *big.Int
	gasEstimate uint64
	baseFee     *big.Int
	failing     map[string]bool
	calls       map[string]int
}

// NewState creates a chain at 50 gwei gas price, 25 gwei base fee and a 300000-unit estimate.
func NewState() *State {
	return &State{
		positions:   make(map[common.Address]Position),
		gasPrice:    big.NewInt(50_000_000_000),
		gasEstimate: 300_000,
		baseFee:     big.NewInt(25_000_000_000),
		failing:     make(map[string]bool),
		calls:       make(map[string]int),
	}
}

// SetPosition stores the position returned for account.
func (s *State) SetPosition(account common.Address, collateral, debt, healthFactor *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[account] = Position{
		Collateral:   new(big.Int).Set(collateral),
		Debt:         new(big.Int).Set(debt),
		HealthFactor: new(big.Int).Set(healthFactor),
	}
}

// RemovePosition forgets account.
func (s *State) RemovePosition(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, account)
}

// SetGasPrice sets the gas price in wei.
func (s *State) SetGasPrice(wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = new(big.Int).Set(wei)
}

// SetGasEstimate sets the liquidation gas estimate.
func (s *State) SetGasEstimate(units uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasEstimate = units
}

// SetBaseFee sets the base fee in wei.
func (s *State) SetBaseFee(wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseFee = new(big.Int).Set(wei)
}

// Fail makes call return ErrUnavailable until failing is set back to false.
func (s *State) Fail(call string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[call] = failing
}

// Calls returns how many times call was invoked.
func (s *State) Calls(call string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[call]
}

func (s *State) enter(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call]++
	if s.failing[call] {
		return ErrUnavailable
	}
	return nil
}

func (s *State) GetPosition(_ context.Context, account common.Address) (*big.Int, *big.Int, *big.Int, error) {
	if err := s.enter(CallPosition); err != nil {
		return nil, nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[account]
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	return new(big.Int).Set(p.Collateral), new(big.Int).Set(p.Debt), new(big.Int).Set(p.HealthFactor), nil
}

func (s *State) GasPrice(context.Context) (*big.Int, error) {
	if err := s.enter(CallGasPrice); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.gasPrice), nil
}

func (s *State) EstimateLiquidationGas(context.Context, common.Address, *big.Int) (uint64, error) {
	if err := s.enter(CallEstimate); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasEstimate, nil
}

func (s *State) BaseFee(context.Context) (*big.Int, error) {
	if err := s.enter(CallBaseFee); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.baseFee), nil
}

var _ chain.StateReader = (*State)(nil)
