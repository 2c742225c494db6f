package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationCache memoizes the available inventory value per invoice date.
// Every committed ledger write must call Invalidate.
type ValuationCache interface {
	Get(ctx context.Context, date string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, date string, value decimal.Decimal, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopValuationCache struct{}

func (NoopValuationCache) Get(_ context.Context, _ string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (NoopValuationCache) Set(_ context.Context, _ string, _ decimal.Decimal, _ time.Duration) error {
	return nil
}

func (NoopValuationCache) Invalidate(_ context.Context) error {
	return nil
}
