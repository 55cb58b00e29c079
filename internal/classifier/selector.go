package classifier

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"evm-liquidation-lab/internal/domain"
)

// SelectorSize is the width of the call-data discriminant.
const SelectorSize = 4

// Selector is the 4-byte function discriminant at the head of call data.
type Selector [SelectorSize]byte

// SelectorOf derives the selector of a canonical signature such as "withdraw(uint256)".
func SelectorOf(signature string) Selector {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var s Selector
	copy(s[:], h.Sum(nil))
	return s
}

// ParseSelector parses an 8-character hex selector, with or without 0x.
func ParseSelector(s string) (Selector, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var sel Selector
	if len(s) != 2*SelectorSize {
		return sel, fmt.Errorf("selector %q: want %d hex chars", s, 2*SelectorSize)
	}
	if _, err := hex.Decode(sel[:], []byte(s)); err != nil {
		return sel, fmt.Errorf("selector %q: %w", s, err)
	}
	return sel, nil
}

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// Table maps selectors to action kinds.
type Table map[Selector]domain.ActionKind

// DefaultTable is the selector set of the mock lending protocol.
func DefaultTable() Table {
	return Table{
		mustSelector("d0e30db0"): domain.ActionDeposit,
		mustSelector("2e1a7d4d"): domain.ActionWithdraw,
		mustSelector("c5ebeaec"): domain.ActionBorrow,
		mustSelector("371fd8e6"): domain.ActionRepay,
		mustSelector("26cdbe1a"): domain.ActionLiquidate,
	}
}

// Lookup returns the kind for a selector.
func (t Table) Lookup(s Selector) (domain.ActionKind, bool) {
	k, ok := t[s]
	return k, ok
}

// SelectorFor returns the selector registered for kind.
func (t Table) SelectorFor(kind domain.ActionKind) (Selector, bool) {
	for s, k := range t {
		if k == kind {
			return s, true
		}
	}
	return Selector{}, false
}

func mustSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}
