package cache

import (
	"context"
	"time"

	"panaderia/backend/internal/domain"
)

// ReportCache keeps recently computed cash reconciliation reports. A
// miss or a cache error always falls back to a direct read; the cache is
// never load-bearing.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.CashReconciliation, bool, error)
	Set(ctx context.Context, key string, value *domain.CashReconciliation, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.CashReconciliation, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.CashReconciliation, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
