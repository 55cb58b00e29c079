package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind is the lending action a transaction performs.
type ActionKind int

// Action kinds.
const (
	ActionDeposit ActionKind = iota + 1
	ActionWithdraw
	ActionBorrow
	ActionRepay
	ActionLiquidate
)

var actionNames = map[ActionKind]string{
	ActionDeposit:   "deposit",
	ActionWithdraw:  "withdraw",
	ActionBorrow:    "borrow",
	ActionRepay:     "repay",
	ActionLiquidate: "liquidate",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// ChangesPosition reports whether the action alters the acting account's own position.
func (k ActionKind) ChangesPosition() bool {
	switch k {
	case ActionDeposit, ActionWithdraw, ActionBorrow, ActionRepay:
		return true
	}
	return false
}

// Event is a raw pending transaction as seen by the pipeline.
type Event struct {
	Hash       common.Hash
	From       common.Address
	To         *common.Address // nil for contract creation
	Input      []byte
	Nonce      uint64
	GasPrice   *big.Int
	ReceivedAt time.Time // zero when the source does not stamp arrival
}

// ClassifiedEvent is the derived view of an Event. Never persisted.
type ClassifiedEvent struct {
	Account common.Address
	Kind    ActionKind
	Target  bool
}
