package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestIsLiquidatable(t *testing.T) {
	tests := []struct {
		name string
		hf   int64
		debt int64
		want bool
	}{
		{"below threshold with debt", 80, 8000, true},
		{"just below threshold", 99, 1, true},
		{"at threshold", 100, 8000, false},
		{"healthy", 150, 1000, false},
		{"underwater but no debt", 50, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := AccountPosition{HealthFactor: big.NewInt(tt.hf), Debt: big.NewInt(tt.debt)}
			if got := p.IsLiquidatable(); got != tt.want {
				t.Errorf("IsLiquidatable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountPosition_CloneIsDeep(t *testing.T) {
	p := AccountPosition{
		Account:      common.HexToAddress("0x01"),
		Collateral:   big.NewInt(5),
		Debt:         big.NewInt(8000),
		HealthFactor: big.NewInt(80),
		LastUpdated:  1700000000,
	}

	c := p.Clone()
	c.Debt.SetInt64(1)

	if p.Debt.Int64() != 8000 {
		t.Errorf("clone shares debt storage: original changed to %s", p.Debt)
	}
	if c.Account != p.Account || c.LastUpdated != p.LastUpdated {
		t.Error("clone lost scalar fields")
	}
}

func TestActionKind_String(t *testing.T) {
	if ActionBorrow.String() != "borrow" {
		t.Errorf("got %s", ActionBorrow.String())
	}
	if ActionKind(0).String() != "unknown" {
		t.Errorf("zero kind should be unknown, got %s", ActionKind(0).String())
	}
	if ActionLiquidate.ChangesPosition() {
		t.Error("liquidate does not change the caller's own position")
	}
	if !ActionRepay.ChangesPosition() {
		t.Error("repay changes position")
	}
}
