package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	p, err := NewStatic(DefaultPriceUSD).PriceOfUnit(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(2000)))

	_, err = NewStatic(decimal.Zero).PriceOfUnit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestRedis_PriceOfUnit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "ETH")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("price:ETH").SetVal("1987.25")
		p, err := r.PriceOfUnit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1987.25", p.String())
	})

	t.Run("missing key", func(t *testing.T) {
		mock.ExpectGet("price:ETH").RedisNil()
		_, err := r.PriceOfUnit(ctx)
		assert.ErrorIs(t, err, ErrNoPrice)
	})

	t.Run("garbage", func(t *testing.T) {
		mock.ExpectGet("price:ETH").SetVal("n/a")
		_, err := r.PriceOfUnit(ctx)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("non-positive", func(t *testing.T) {
		mock.ExpectGet("price:ETH").SetVal("-1")
		_, err := r.PriceOfUnit(ctx)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("connection error", func(t *testing.T) {
		mock.ExpectGet("price:ETH").SetErr(errors.New("dial tcp: refused"))
		_, err := r.PriceOfUnit(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoPrice)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "ETH")

	mock.ExpectSet("price:ETH", "2000", 0).SetVal("OK")
	require.NoError(t, r.Publish(context.Background(), decimal.NewFromInt(2000)))
	require.NoError(t, mock.ExpectationsWereMet())
}

type failing struct{}

func (failing) PriceOfUnit(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, ErrNoPrice
}

func TestFallback(t *testing.T) {
	ctx := context.Background()

	p, err := NewFallback(failing{}, NewStatic(decimal.NewFromInt(1500))).PriceOfUnit(ctx)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(1500)))

	_, err = NewFallback(failing{}, failing{}).PriceOfUnit(ctx)
	assert.ErrorIs(t, err, ErrNoPrice)

	_, err = NewFallback().PriceOfUnit(ctx)
	assert.ErrorIs(t, err, ErrNoPrice)
}
