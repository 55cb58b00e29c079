// Package classifier maps raw transactions to lending actions.
package classifier

import (
	"github.com/ethereum/go-ethereum/common"

	"evm-liquidation-lab/internal/domain"
)

const wordSize = 32

// Classifier recognizes transactions sent to one lending protocol.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	table    Table
	protocol common.Address
}

// New creates a Classifier. A nil table means DefaultTable.
func New(protocol common.Address, table Table) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	return &Classifier{table: table, protocol: protocol}
}

// Protocol returns the configured protocol address.
func (c *Classifier) Protocol() common.Address {
	return c.protocol
}

// IsTarget reports whether the event is addressed to the protocol.
func (c *Classifier) IsTarget(ev *domain.Event) bool {
	return ev != nil && ev.To != nil && *ev.To == c.protocol
}

// Classify maps the payload selector to an action kind.
// Returns false for payloads shorter than a selector or unknown selectors.
func (c *Classifier) Classify(ev *domain.Event) (domain.ActionKind, bool) {
	if ev == nil || len(ev.Input) < SelectorSize {
		return 0, false
	}
	var s Selector
	copy(s[:], ev.Input[:SelectorSize])
	return c.table.Lookup(s)
}

// ActingAccount returns the sender; positions are tracked by it.
func (c *Classifier) ActingAccount(ev *domain.Event) common.Address {
	return ev.From
}

// LiquidatedAccount returns the borrower named by a liquidate call
// (first argument word), or the sender when the payload carries no argument.
func (c *Classifier) LiquidatedAccount(ev *domain.Event) common.Address {
	if len(ev.Input) >= SelectorSize+wordSize {
		return common.BytesToAddress(ev.Input[SelectorSize : SelectorSize+wordSize])
	}
	return ev.From
}

// ClassifyEvent combines IsTarget, Classify and account resolution.
func (c *Classifier) ClassifyEvent(ev *domain.Event) (domain.ClassifiedEvent, bool) {
	kind, ok := c.Classify(ev)
	if !ok {
		return domain.ClassifiedEvent{}, false
	}
	account := c.ActingAccount(ev)
	if !kind.ChangesPosition() {
		account = c.LiquidatedAccount(ev)
	}
	return domain.ClassifiedEvent{
		Account: account,
		Kind:    kind,
		Target:  c.IsTarget(ev),
	}, true
}

// Encode builds call data for kind: selector followed by the given ABI words.
func (c *Classifier) Encode(kind domain.ActionKind, words ...common.Hash) ([]byte, bool) {
	sel, ok := c.table.SelectorFor(kind)
	if !ok {
		return nil, false
	}
	out := make([]byte, 0, SelectorSize+len(words)*wordSize)
	out = append(out, sel[:]...)
	for _, w := range words {
		out = append(out, w.Bytes()...)
	}
	return out, true
}
