package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// Redis reads a decimal price string published under price:<symbol>.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, symbol string) *Redis {
	return &Redis{client: client, key: Key(symbol)}
}

// DialRedis connects using a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url, symbol string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, symbol), nil
}

// Key returns the price key for symbol.
func Key(symbol string) string {
	return "price:" + symbol
}

func (r *Redis) PriceOfUnit(ctx context.Context) (decimal.Decimal, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("redis %s: %w", r.key, ErrNoPrice)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis %s: %w: %q", r.key, ErrInvalidPrice, raw)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("redis %s: %w: %s", r.key, ErrInvalidPrice, p)
	}
	return p, nil
}

// Publish stores price for other readers.
func (r *Redis) Publish(ctx context.Context, price decimal.Decimal) error {
	if err := r.client.Set(ctx, r.key, price.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ PriceOracle = (*Redis)(nil)
