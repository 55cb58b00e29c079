package decision

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"evm-liquidation-lab/internal/detector"
	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/idhash"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/simulation"
)

func testSignal() *detector.Signal {
	return detector.NewSignal(domain.AccountPosition{
		Account:      common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Collateral:   big.NewInt(5),
		Debt:         big.NewInt(8000),
		HealthFactor: big.NewInt(80),
	}, metrics.NewCheckpoints())
}

func TestBuilder_Build(t *testing.T) {
	fixed := time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC)
	b := NewBuilder("run-1").WithClock(func() time.Time { return fixed })
	sig := testSignal()

	rec, err := b.Build(3, sig, &simulation.Result{
		Profitable:        true,
		DebtToCover:       big.NewInt(8000),
		ExpectedProfitUSD: decimal.RequireFromString("770.004"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if rec.DecisionID != idhash.ComputeDecisionID("run-1", 3, sig.Account.Hex()) {
		t.Errorf("unexpected decision id %s", rec.DecisionID)
	}
	if rec.HealthFactor != "80" || rec.DebtToCover != "8000" || rec.ExpectedProfitUSD != "770.00" {
		t.Errorf("unexpected amounts %+v", rec)
	}
	if !rec.Profitable || rec.CreatedAt != fixed.UnixMilli() || rec.Attempt != 3 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestBuilder_BuildWithoutSimulation(t *testing.T) {
	rec, err := NewBuilder("run-1").Build(1, testSignal(), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if rec.Profitable || rec.DebtToCover != "" {
		t.Errorf("expected empty simulation fields, got %+v", rec)
	}
}

func TestBuilder_BuildNilSignal(t *testing.T) {
	if _, err := NewBuilder("run-1").Build(1, nil, nil); err != ErrNoSignal {
		t.Errorf("expected ErrNoSignal, got %v", err)
	}
}
