// Package cache fronts the product catalog reads that dominate till
// traffic. A miss always falls through to the repository.
package cache

import (
	"context"
	"time"

	"github.com/J-Enyeribe/TheChase/internal/domain"
)

type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, value []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
