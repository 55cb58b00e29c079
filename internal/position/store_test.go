package position

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func fixed(collateral, debt, hf int64) LookupFunc {
	return func(context.Context, common.Address) (*big.Int, *big.Int, *big.Int, error) {
		return big.NewInt(collateral), big.NewInt(debt), big.NewInt(hf), nil
	}
}

func TestRefresh_ThenGet(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, alice, fixed(5, 8000, 80)))

	p, ok := store.Get(alice)
	require.True(t, ok)
	assert.Equal(t, alice, p.Account)
	assert.Equal(t, int64(5), p.Collateral.Int64())
	assert.Equal(t, int64(8000), p.Debt.Int64())
	assert.Equal(t, int64(80), p.HealthFactor.Int64())
	assert.Equal(t, now.Unix(), p.LastUpdated)
	assert.Equal(t, 1, store.Count())
}

func TestRefresh_LookupFailureLeavesStoreUnchanged(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Refresh(ctx, alice, fixed(5, 8000, 80)))

	boom := LookupFunc(func(context.Context, common.Address) (*big.Int, *big.Int, *big.Int, error) {
		return nil, nil, nil, errors.New("connection refused")
	})
	err := store.Refresh(ctx, alice, boom)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookup))

	p, ok := store.Get(alice)
	require.True(t, ok)
	assert.Equal(t, int64(8000), p.Debt.Int64())
}

func TestRefresh_UpsertReplacesWholeSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, alice, fixed(5, 8000, 80)))
	require.NoError(t, store.Refresh(ctx, alice, fixed(9, 100, 400)))

	p, _ := store.Get(alice)
	assert.Equal(t, int64(9), p.Collateral.Int64())
	assert.Equal(t, int64(100), p.Debt.Int64())
	assert.Equal(t, int64(400), p.HealthFactor.Int64())
	assert.Equal(t, 1, store.Count())
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Refresh(context.Background(), alice, fixed(5, 8000, 80)))

	p, _ := store.Get(alice)
	p.Debt.SetInt64(0)

	again, _ := store.Get(alice)
	assert.Equal(t, int64(8000), again.Debt.Int64())
}

func TestRefresh_DoesNotAliasLookupValues(t *testing.T) {
	store := NewMemoryStore()
	debt := big.NewInt(8000)
	lookup := LookupFunc(func(context.Context, common.Address) (*big.Int, *big.Int, *big.Int, error) {
		return big.NewInt(5), debt, big.NewInt(80), nil
	})
	require.NoError(t, store.Refresh(context.Background(), alice, lookup))

	debt.SetInt64(1)
	p, _ := store.Get(alice)
	assert.Equal(t, int64(8000), p.Debt.Int64())
}

func TestClearAndSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	accounts := []common.Address{
		common.HexToAddress("0x03"),
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
	}
	for _, a := range accounts {
		require.NoError(t, store.Refresh(ctx, a, fixed(1, 1, 200)))
	}

	snap := store.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, common.HexToAddress("0x01"), snap[0].Account)
	assert.Equal(t, common.HexToAddress("0x03"), snap[2].Account)

	store.Clear()
	assert.Equal(t, 0, store.Count())
	_, ok := store.Get(accounts[0])
	assert.False(t, ok)
}

// Writers alternate between two self-consistent snapshots; readers must
// never see fields from both.
func TestConcurrentRefreshAndGet_NoTornReads(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Refresh(ctx, alice, fixed(1, 1, 1)))

	const iterations = 2000
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			v := int64(1 + i%2)
			_ = store.Refresh(ctx, alice, fixed(v, v, v))
		}
	}()

	torn := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				p, ok := store.Get(alice)
				if !ok {
					continue
				}
				c, d, h := p.Collateral.Int64(), p.Debt.Int64(), p.HealthFactor.Int64()
				if c != d || d != h {
					select {
					case torn <- "mixed snapshot":
					default:
					}
					return
				}
			}
		}()
	}

	wg.Wait()
	close(torn)
	for msg := range torn {
		t.Fatal(msg)
	}
}
