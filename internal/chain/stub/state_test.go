package stub

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestState_Position(t *testing.T) {
	s := NewState()
	ctx := context.Background()
	a := common.HexToAddress("0x01")

	if _, _, _, err := s.GetPosition(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	debt := big.NewInt(8000)
	s.SetPosition(a, big.NewInt(5), debt, big.NewInt(80))
	debt.SetInt64(0)

	_, d, hf, err := s.GetPosition(ctx, a)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if d.Int64() != 8000 || hf.Int64() != 80 {
		t.Errorf("unexpected position %s %s", d, hf)
	}
	if s.Calls(CallPosition) != 2 {
		t.Errorf("expected 2 calls, got %d", s.Calls(CallPosition))
	}
}

func TestState_Fail(t *testing.T) {
	s := NewState()
	ctx := context.Background()

	s.Fail(CallGasPrice, true)
	if _, err := s.GasPrice(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	s.Fail(CallGasPrice, false)
	p, err := s.GasPrice(ctx)
	if err != nil || p.Int64() != 50_000_000_000 {
		t.Errorf("GasPrice = %v %v", p, err)
	}
}
