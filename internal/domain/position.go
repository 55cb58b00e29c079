package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationThreshold is the health factor (percent) below which a position can be liquidated.
const LiquidationThreshold = 100

var liquidationThreshold = big.NewInt(LiquidationThreshold)

// AccountPosition is the last-known lending state of one account.
type AccountPosition struct {
	Account      common.Address
	Collateral   *big.Int // wei scale (1e18 per asset unit)
	Debt         *big.Int // USD scale (1e18 per dollar)
	HealthFactor *big.Int // percent, 100 = 1.0
	LastUpdated  int64    // unix seconds
}

// Clone returns a deep copy so callers never share big.Int backing storage with the store.
func (p AccountPosition) Clone() AccountPosition {
	return AccountPosition{
		Account:      p.Account,
		Collateral:   cloneInt(p.Collateral),
		Debt:         cloneInt(p.Debt),
		HealthFactor: cloneInt(p.HealthFactor),
		LastUpdated:  p.LastUpdated,
	}
}

// IsLiquidatable reports health_factor < 100 and debt > 0.
func (p AccountPosition) IsLiquidatable() bool {
	return IsLiquidatable(p.HealthFactor, p.Debt)
}

// IsLiquidatable applies the liquidation predicate to raw values.
// Nil values are treated as zero.
func IsLiquidatable(healthFactor, debt *big.Int) bool {
	if debt == nil || debt.Sign() <= 0 {
		return false
	}
	if healthFactor == nil {
		return true
	}
	return healthFactor.Cmp(liquidationThreshold) < 0
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
