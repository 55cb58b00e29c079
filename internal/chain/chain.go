// Package chain is the boundary to an EVM node: position reads, gas inputs
// and pending-transaction subscription.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-liquidation-lab/internal/domain"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")
	// ErrNotConnected is returned when no websocket connection is up.
	ErrNotConnected = errors.New("not connected")
	// ErrShortReturn is returned when a contract call returns fewer words than its ABI declares.
	ErrShortReturn = errors.New("short return data")
)

// StateReader reads the lending protocol and gas market.
type StateReader interface {
	// GetPosition calls getPosition(address) on the protocol.
	GetPosition(ctx context.Context, account common.Address) (collateral, debt, healthFactor *big.Int, err error)

	// GasPrice returns the node's suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)

	// EstimateLiquidationGas estimates gas units for liquidating debt of account.
	EstimateLiquidationGas(ctx context.Context, account common.Address, debt *big.Int) (uint64, error)

	// BaseFee returns the latest block's base fee in wei.
	BaseFee(ctx context.Context) (*big.Int, error)
}

// PendingSubscriber streams pending transactions as pipeline events.
type PendingSubscriber interface {
	// SubscribePending subscribes to full pending transactions.
	SubscribePending(ctx context.Context) (<-chan domain.Event, error)

	// Close closes the connection and every subscription channel.
	Close() error
}
