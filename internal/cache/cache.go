package cache

import (
	"context"
	"time"

	"vendormall/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesLeaders, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesLeaders, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesLeaders, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesLeaders, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
