package service

import (
	"context"
	"fmt"

	"asset-cache/pkg/models"

	"golang.org/x/sync/errgroup"
)

// QuotaMonitor sums stored bytes across every collection. Nothing is
// cached between calls.
type QuotaMonitor struct {
	lifecycle *Lifecycle
	maxBytes  int64
}

// NewQuotaMonitor creates a monitor against a fixed ceiling
func NewQuotaMonitor(lifecycle *Lifecycle, maxBytes int64) *QuotaMonitor {
	return &QuotaMonitor{lifecycle: lifecycle, maxBytes: maxBytes}
}

// Usage scans the four collections concurrently
func (q *QuotaMonitor) Usage(ctx context.Context) (models.StorageUsage, error) {
	engine := q.lifecycle.Instance()

	sums := make([]int64, len(models.AllCollections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range models.AllCollections {
		store := NewCacheStore(engine, collection)
		g.Go(func() error {
			n, err := store.SumSizes(gctx)
			if err != nil {
				return fmt.Errorf("sum %s: %w", store.Collection(), err)
			}
			sums[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return q.zero(), fmt.Errorf("%w: %w", ErrQuotaComputation, err)
	}

	usage := models.StorageUsage{MaxBytes: q.maxBytes}
	for _, n := range sums {
		usage.UsedBytes += n
	}
	usage.CalculatePercentage()
	return usage, nil
}

func (q *QuotaMonitor) zero() models.StorageUsage {
	return models.StorageUsage{MaxBytes: q.maxBytes}
}
