// Package oracle supplies the USD price of one collateral unit.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoPrice is returned when a source holds no price.
	ErrNoPrice = errors.New("no price available")
	// ErrInvalidPrice is returned for a zero, negative or unparseable price.
	ErrInvalidPrice = errors.New("invalid price")
)

// DefaultPriceUSD is the reference collateral price.
var DefaultPriceUSD = decimal.NewFromInt(2000)

// PriceOracle returns the USD price of one collateral unit.
type PriceOracle interface {
	PriceOfUnit(ctx context.Context) (decimal.Decimal, error)
}

// Static always returns one configured price.
type Static struct {
	price decimal.Decimal
}

// NewStatic creates a fixed-price oracle.
func NewStatic(price decimal.Decimal) *Static {
	return &Static{price: price}
}

func (s *Static) PriceOfUnit(context.Context) (decimal.Decimal, error) {
	if !s.price.IsPositive() {
		return decimal.Zero, fmt.Errorf("static: %w: %s", ErrInvalidPrice, s.price)
	}
	return s.price, nil
}

// Fallback tries each source in order and returns the first success.
type Fallback struct {
	sources []PriceOracle
}

// NewFallback chains sources.
func NewFallback(sources ...PriceOracle) *Fallback {
	return &Fallback{sources: sources}
}

func (f *Fallback) PriceOfUnit(ctx context.Context) (decimal.Decimal, error) {
	var errs []error
	for _, src := range f.sources {
		p, err := src.PriceOfUnit(ctx)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return decimal.Zero, fmt.Errorf("all price sources failed: %w", errors.Join(errs...))
}

var (
	_ PriceOracle = (*Static)(nil)
	_ PriceOracle = (*Fallback)(nil)
)
