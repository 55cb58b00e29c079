package classifier

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-liquidation-lab/internal/domain"
)

var (
	protocol = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	sender   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	borrower = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func eventTo(to common.Address, input []byte) *domain.Event {
	return &domain.Event{From: sender, To: &to, Input: input}
}

func TestSelectorOf_KnownSignatures(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		{"deposit()", "0xd0e30db0"},
		{"withdraw(uint256)", "0x2e1a7d4d"},
		{"borrow(uint256)", "0xc5ebeaec"},
		{"transfer(address,uint256)", "0xa9059cbb"},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectorOf(tt.signature).String())
		})
	}
}

func TestParseSelector(t *testing.T) {
	s, err := ParseSelector("0xD0E30DB0")
	require.NoError(t, err)
	assert.Equal(t, "0xd0e30db0", s.String())

	_, err = ParseSelector("d0e30d")
	assert.Error(t, err)

	_, err = ParseSelector("zzzzzzzz")
	assert.Error(t, err)
}

func TestClassify_RoundTripEveryKind(t *testing.T) {
	c := New(protocol, nil)

	for _, kind := range []domain.ActionKind{
		domain.ActionDeposit,
		domain.ActionWithdraw,
		domain.ActionBorrow,
		domain.ActionRepay,
		domain.ActionLiquidate,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			input, ok := c.Encode(kind, common.BigToHash(big.NewInt(1e18)))
			require.True(t, ok)

			got, ok := c.Classify(eventTo(protocol, input))
			require.True(t, ok)
			assert.Equal(t, kind, got)

			// same discriminant, same answer
			again, _ := c.Classify(eventTo(protocol, input[:SelectorSize]))
			assert.Equal(t, got, again)
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	c := New(protocol, nil)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"three bytes", []byte{0xd0, 0xe3, 0x0d}},
		{"unknown selector", []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Classify(eventTo(protocol, tt.input))
			assert.False(t, ok)
		})
	}

	_, ok := c.Classify(nil)
	assert.False(t, ok)
}

func TestIsTarget(t *testing.T) {
	c := New(protocol, nil)

	assert.True(t, c.IsTarget(eventTo(protocol, nil)))
	assert.False(t, c.IsTarget(eventTo(common.HexToAddress("0xdead"), nil)))
	assert.False(t, c.IsTarget(&domain.Event{From: sender}), "contract creation has no recipient")
}

func TestActingAndLiquidatedAccount(t *testing.T) {
	c := New(protocol, nil)

	input, ok := c.Encode(domain.ActionLiquidate,
		common.BytesToHash(borrower.Bytes()),
		common.BigToHash(big.NewInt(8000)),
	)
	require.True(t, ok)
	ev := eventTo(protocol, input)

	assert.Equal(t, sender, c.ActingAccount(ev))
	assert.Equal(t, borrower, c.LiquidatedAccount(ev))

	ce, ok := c.ClassifyEvent(ev)
	require.True(t, ok)
	assert.Equal(t, borrower, ce.Account)
	assert.Equal(t, domain.ActionLiquidate, ce.Kind)
	assert.True(t, ce.Target)

	bare, _ := c.Encode(domain.ActionLiquidate)
	assert.Equal(t, sender, c.LiquidatedAccount(eventTo(protocol, bare)))
}

func TestCustomTable(t *testing.T) {
	table := Table{SelectorOf("supply(uint256)"): domain.ActionDeposit}
	c := New(protocol, table)

	input, ok := c.Encode(domain.ActionDeposit)
	require.True(t, ok)
	assert.Equal(t, SelectorOf("supply(uint256)").String(), "0x"+common.Bytes2Hex(input))

	_, ok = c.Encode(domain.ActionBorrow)
	assert.False(t, ok)
}
