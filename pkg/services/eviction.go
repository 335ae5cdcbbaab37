package service

import (
	"context"
	"sync"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/models"
	"asset-cache/pkg/utils"

	"github.com/sirupsen/logrus"
)

// EvictionEngine deletes expired icons, then expired fonts, once usage
// passes the cleanup threshold. Resources and metadata are never evicted
// automatically.
type EvictionEngine struct {
	lifecycle *Lifecycle
	quota     *QuotaMonitor
	config    config.CacheConfig
	log       *utils.Logger
	now       func() time.Time
	mu        sync.Mutex
	running   bool
}

// NewEvictionEngine creates an eviction engine
func NewEvictionEngine(lifecycle *Lifecycle, quota *QuotaMonitor, cfg config.CacheConfig, log *utils.Logger, now func() time.Time) *EvictionEngine {
	if now == nil {
		now = time.Now
	}
	return &EvictionEngine{
		lifecycle: lifecycle,
		quota:     quota,
		config:    cfg,
		log:       log,
		now:       now,
	}
}

// MaybeCleanup runs one pass. A call made while another pass is running
// returns immediately with Skipped set.
func (e *EvictionEngine) MaybeCleanup(ctx context.Context) *models.CleanupResult {
	thresholdPct := e.config.CleanupThreshold * 100
	result := &models.CleanupResult{ThresholdPct: thresholdPct}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		result.Skipped = true
		return result
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	start := time.Now()

	usage := e.usage(ctx, result)
	result.UsageBefore = usage.Percentage
	result.UsageAfter = usage.Percentage
	if usage.Percentage <= thresholdPct {
		e.log.WithFunc().WithFields(logrus.Fields{
			"percentage": usage.Percentage,
			"threshold":  thresholdPct,
		}).Debug("Usage below threshold, nothing to evict")
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	result.Triggered = true

	engine := e.lifecycle.Instance()

	// Phase 1: icons
	deleted, err := e.evict(ctx, NewCacheStore(engine, models.CollectionIcons), e.config.IconTTL)
	if err != nil {
		result.Errors = append(result.Errors, "icons: "+err.Error())
	}
	result.IconsDeleted = deleted

	usage = e.usage(ctx, result)
	result.UsageAfter = usage.Percentage

	// Phase 2: fonts, only if icons were not enough
	if usage.Percentage > thresholdPct {
		deleted, err := e.evict(ctx, NewCacheStore(engine, models.CollectionFonts), e.config.FontTTL)
		if err != nil {
			result.Errors = append(result.Errors, "fonts: "+err.Error())
		}
		result.FontsDeleted = deleted
		result.UsageAfter = e.usage(ctx, result).Percentage
	}

	result.DurationMs = time.Since(start).Milliseconds()

	e.log.WithFunc().WithFields(logrus.Fields{
		"iconsDeleted": result.IconsDeleted,
		"fontsDeleted": result.FontsDeleted,
		"usageBefore":  result.UsageBefore,
		"usageAfter":   result.UsageAfter,
		"durationMs":   result.DurationMs,
	}).Info("Cache cleanup completed")

	return result
}

func (e *EvictionEngine) evict(ctx context.Context, store *CacheStore, ttl time.Duration) (int, error) {
	cutoff := expiryCutoff(e.now(), ttl)
	e.log.WithFunc().WithFields(logrus.Fields{
		"collection": store.Collection(),
		"cutoff":     cutoff,
	}).Debug("Scanning for expired entries")

	deleted, err := store.ScanExpired(ctx, cutoff)
	if err != nil {
		e.log.WithFunc().WithError(err).WithField("collection", store.Collection()).Warn("Failed to evict expired entries")
		return deleted, err
	}
	return deleted, nil
}

// usage maps a quota failure to a zeroed snapshot, which is below any
// threshold and so ends the pass.
func (e *EvictionEngine) usage(ctx context.Context, result *models.CleanupResult) models.StorageUsage {
	usage, err := e.quota.Usage(ctx)
	if err != nil {
		e.log.WithFunc().WithError(err).Warn("Failed to compute storage usage")
		result.Errors = append(result.Errors, "usage: "+err.Error())
	}
	return usage
}
