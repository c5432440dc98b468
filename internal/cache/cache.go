package cache

import (
	"context"
	"time"

	"bakkal/backoffice/internal/domain"
)

// DiscountCache holds the category discount list of one partition.
type DiscountCache interface {
	Get(ctx context.Context, partition string) ([]domain.CategoryDiscount, bool, error)
	Set(ctx context.Context, partition string, value []domain.CategoryDiscount, ttl time.Duration) error
	Invalidate(ctx context.Context, partition string) error
}

type NoopDiscountCache struct{}

func (NoopDiscountCache) Get(_ context.Context, _ string) ([]domain.CategoryDiscount, bool, error) {
	return nil, false, nil
}

func (NoopDiscountCache) Set(_ context.Context, _ string, _ []domain.CategoryDiscount, _ time.Duration) error {
	return nil
}

func (NoopDiscountCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
