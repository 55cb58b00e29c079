package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"
)

type flakyReader struct {
	err   error
	calls int
}

func (f *flakyReader) GetPosition(context.Context, common.Address) (*big.Int, *big.Int, *big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return big.NewInt(1), big.NewInt(2), big.NewInt(3), nil
}

func (f *flakyReader) GasPrice(context.Context) (*big.Int, error) {
	f.calls++
	return big.NewInt(7), f.err
}

func (f *flakyReader) EstimateLiquidationGas(context.Context, common.Address, *big.Int) (uint64, error) {
	f.calls++
	return 21000, f.err
}

func (f *flakyReader) BaseFee(context.Context) (*big.Int, error) {
	f.calls++
	return big.NewInt(9), f.err
}

func TestBreakerReader_PassThrough(t *testing.T) {
	inner := &flakyReader{}
	b := NewBreakerReader(inner, BreakerSettings("test", nil))
	ctx := context.Background()

	c, d, hf, err := b.GetPosition(ctx, common.Address{})
	if err != nil || c.Int64() != 1 || d.Int64() != 2 || hf.Int64() != 3 {
		t.Fatalf("GetPosition = %v %v %v %v", c, d, hf, err)
	}
	if p, err := b.GasPrice(ctx); err != nil || p.Int64() != 7 {
		t.Errorf("GasPrice = %v %v", p, err)
	}
	if g, err := b.EstimateLiquidationGas(ctx, common.Address{}, big.NewInt(1)); err != nil || g != 21000 {
		t.Errorf("EstimateLiquidationGas = %v %v", g, err)
	}
	if f, err := b.BaseFee(ctx); err != nil || f.Int64() != 9 {
		t.Errorf("BaseFee = %v %v", f, err)
	}
}

func TestBreakerReader_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyReader{err: errors.New("connection refused")}
	b := NewBreakerReader(inner, BreakerSettings("test", nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.GasPrice(ctx); err == nil {
			t.Fatal("expected error")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}

	_, err := b.GasPrice(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("open breaker should not call through, calls=%d", inner.calls)
	}
}
