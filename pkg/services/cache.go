// pkg/services/cache.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/models"
	"asset-cache/pkg/utils"
	"asset-cache/pkg/version"

	"github.com/sirupsen/logrus"
)

const (
	iconAccept = "image/avif,image/webp,image/png,image/svg+xml,image/*;q=0.8,*/*;q=0.5"
	fontAccept = "font/woff2,font/woff;q=0.9,*/*;q=0.5"
)

// CacheService fetches, caches and serves icons, fonts and resources.
// Every public method degrades to a safe default instead of failing.
//
// Concurrent cold lookups of one key may each fetch; the later write wins
// and the collection still holds a single entry for the key.
type CacheService struct {
	lifecycle  *Lifecycle
	config     config.CacheConfig
	log        *utils.Logger
	httpClient *http.Client
	denylist   *Denylist
	fallback   FallbackAssetGenerator
	quota      *QuotaMonitor
	eviction   *EvictionEngine
	now        func() time.Time
}

// Option customizes a CacheService
type Option func(*CacheService)

// WithHTTPClient replaces the client used for icon and font fetches
func WithHTTPClient(client *http.Client) Option {
	return func(s *CacheService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithClock replaces time.Now for expiry and eviction decisions
func WithClock(now func() time.Time) Option {
	return func(s *CacheService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCacheService creates the cache orchestrator
func NewCacheService(lifecycle *Lifecycle, cfg config.CacheConfig, log *utils.Logger, opts ...Option) (*CacheService, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("❌ lifecycle is nil")
	}
	if log == nil {
		return nil, fmt.Errorf("❌ logger is nil")
	}

	denylist, err := NewDenylist(cfg.Denylist)
	if err != nil {
		return nil, fmt.Errorf("❌ failed to build denylist: %w", err)
	}

	svc := &CacheService{
		lifecycle: lifecycle,
		config:    cfg,
		log:       log,
		httpClient: newFetchClient(),
		denylist:   denylist,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.quota = NewQuotaMonitor(lifecycle, cfg.MaxStorageBytes)
	svc.eviction = NewEvictionEngine(lifecycle, svc.quota, cfg, log, svc.now)

	log.WithFields(logrus.Fields{
		"maxStorageBytes":  cfg.MaxStorageBytes,
		"iconTTL":          cfg.IconTTL.String(),
		"fontTTL":          cfg.FontTTL.String(),
		"cleanupThreshold": cfg.CleanupThreshold,
		"denylist":         len(denylist.Patterns()),
	}).Info("Cache service initialized")

	return svc, nil
}

// DomainFor returns the icon cache key for rawURL, or the normalized
// override when one is given
func (s *CacheService) DomainFor(rawURL, override string) string {
	if strings.TrimSpace(override) != "" {
		return normalizeDomain(override)
	}
	return DomainFromURL(rawURL)
}

// GetIcon always returns an image reference: the cached or fetched icon,
// or the generated placeholder for the domain.
func (s *CacheService) GetIcon(ctx context.Context, rawURL, domainOverride string) string {
	domain := s.DomainFor(rawURL, domainOverride)
	logEntry := s.log.WithFunc().WithFields(logrus.Fields{
		"url":    rawURL,
		"domain": domain,
	})

	icons := NewCacheStore(s.lifecycle.Instance(), models.CollectionIcons)

	// Initialization is awaited once up front so an unavailable store skips
	// the network as well
	if _, err := icons.engine.Store(ctx); err != nil {
		return s.iconFallback(ctx, icons, domain, rawURL, err)
	}

	if s.denylist.Matches(domain) {
		return s.iconFallback(ctx, icons, domain, rawURL, ErrDenylisted)
	}
	// an override must not launder a denylisted origin; nothing is cached
	// under the override key in that case
	if host := DomainFromURL(rawURL); host != domain && s.denylist.Matches(host) {
		logEntry.WithField("host", host).Debug("Icon origin denylisted, using placeholder icon")
		return s.fallback.Generate(domain)
	}

	if domain != "" {
		entry, ok, err := icons.Get(ctx, domain)
		if err != nil {
			logEntry.WithError(err).Warn("Icon lookup failed, fetching")
		} else if ok && !IsExpired(entry.StoredAt, s.config.IconTTL, s.now()) {
			logEntry.Debug("Icon cache hit")
			return entry.Payload
		}
	}

	payload, err := s.fetchDataURL(ctx, rawURL, iconAccept, s.config.IconFetchTimeout)
	if err == nil && !strings.HasPrefix(payload, "data:image/") {
		err = fmt.Errorf("%w: upstream did not return an image", ErrEncodingFailure)
	}
	if err != nil {
		return s.iconFallback(ctx, icons, domain, rawURL, err)
	}

	if domain != "" {
		if err := icons.Put(ctx, s.entry(domain, rawURL, payload, models.CategoryIcon)); err != nil {
			logEntry.WithError(err).Warn("Failed to cache icon")
		}
	}
	logEntry.WithField("sizeBytes", len(payload)).Debug("Icon fetched")
	return payload
}

// iconFallback generates the placeholder and writes it through under the
// same key so a failing origin is not retried before the icon TTL.
func (s *CacheService) iconFallback(ctx context.Context, icons *CacheStore, domain, rawURL string, cause error) string {
	payload := s.fallback.Generate(domain)

	logEntry := s.log.WithFunc().WithFields(logrus.Fields{
		"url":    rawURL,
		"domain": domain,
		"reason": cause.Error(),
	})
	if errors.Is(cause, ErrDenylisted) {
		logEntry.Debug("Domain denylisted, using placeholder icon")
	} else {
		logEntry.Info("Using placeholder icon")
	}

	if domain == "" || errors.Is(cause, ErrStoreUnavailable) {
		return payload
	}
	if err := icons.Put(ctx, s.entry(domain, rawURL, payload, models.CategoryIcon)); err != nil {
		logEntry.WithError(err).Debug("Failed to cache placeholder icon")
	}
	return payload
}

// GetFont returns the cached or fetched font as a data URL. Failures
// return false and cache nothing; callers fall back to a system font.
func (s *CacheService) GetFont(ctx context.Context, fontName, fontURL string) (string, bool) {
	logEntry := s.log.WithFunc().WithFields(logrus.Fields{
		"font": fontName,
		"url":  fontURL,
	})
	if strings.TrimSpace(fontName) == "" {
		logEntry.Debug("Empty font name")
		return "", false
	}

	fonts := NewCacheStore(s.lifecycle.Instance(), models.CollectionFonts)

	entry, ok, err := fonts.Get(ctx, fontName)
	if err != nil {
		logEntry.WithError(err).Warn("Font lookup failed")
		return "", false
	}
	if ok && !IsExpired(entry.StoredAt, s.config.FontTTL, s.now()) {
		logEntry.Debug("Font cache hit")
		return entry.Payload, true
	}

	if host := DomainFromURL(fontURL); isLocalHost(host) {
		logEntry.WithField("host", host).Warn("Refusing font fetch from a local address")
		return "", false
	}

	payload, err := s.fetchDataURL(ctx, fontURL, fontAccept, s.config.FontFetchTimeout)
	if err != nil {
		logEntry.WithError(err).Info("Font unavailable")
		return "", false
	}

	if err := fonts.Put(ctx, s.entry(fontName, fontURL, payload, models.CategoryFont)); err != nil {
		logEntry.WithError(err).Warn("Failed to cache font")
	}
	return payload, true
}

// CacheResource stores caller-supplied content under url. Best effort.
func (s *CacheService) CacheResource(ctx context.Context, rawURL, content, resourceType string) {
	logEntry := s.log.WithFunc().WithFields(logrus.Fields{
		"url":  rawURL,
		"type": resourceType,
	})
	if rawURL == "" {
		logEntry.Debug("Empty resource url, not caching")
		return
	}

	resources := NewCacheStore(s.lifecycle.Instance(), models.CollectionResources)
	if err := resources.Put(ctx, s.entry(rawURL, rawURL, content, resourceType)); err != nil {
		logEntry.WithError(err).Warn("Failed to cache resource")
		return
	}
	logEntry.WithField("sizeBytes", len(content)).Debug("Resource cached")
}

// GetCachedResource returns fresh content stored under url
func (s *CacheService) GetCachedResource(ctx context.Context, rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	resources := NewCacheStore(s.lifecycle.Instance(), models.CollectionResources)
	entry, ok, err := resources.Get(ctx, rawURL)
	if err != nil {
		s.log.WithFunc().WithError(err).WithField("url", rawURL).Warn("Resource lookup failed")
		return "", false
	}
	if !ok || IsExpired(entry.StoredAt, s.config.ResourceTTL, s.now()) {
		return "", false
	}
	return entry.Payload, true
}

// GetStorageUsage recomputes usage; a failed scan reports zero usage
func (s *CacheService) GetStorageUsage(ctx context.Context) models.StorageUsage {
	usage, err := s.quota.Usage(ctx)
	if err != nil {
		s.log.WithFunc().WithError(err).Warn("Failed to compute storage usage")
	}
	return usage
}

// MaybeCleanup evicts expired entries when usage is over the threshold
func (s *CacheService) MaybeCleanup(ctx context.Context) *models.CleanupResult {
	return s.eviction.MaybeCleanup(ctx)
}

// ClearAllCache empties every collection. The schema version record is
// written back afterwards.
func (s *CacheService) ClearAllCache(ctx context.Context) {
	engine := s.lifecycle.Instance()
	for _, collection := range models.AllCollections {
		if err := NewCacheStore(engine, collection).Clear(ctx); err != nil {
			s.log.WithFunc().WithError(err).WithField("collection", collection).Warn("Failed to clear collection")
		}
	}

	store, err := engine.Store(ctx)
	if err != nil {
		return
	}
	if err := EnsureSchemaVersion(ctx, store, s.log); err != nil {
		s.log.WithFunc().WithError(err).Warn("Failed to restore schema version after clear")
	}
	s.log.WithFunc().Info("Cache cleared")
}

// fetchDataURL performs one GET bounded by timeout and encodes the body.
// No retry: a failure goes straight to the caller's fallback.
func (s *CacheService) fetchDataURL(ctx context.Context, rawURL, accept string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrNetworkFailure, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: upstream returned status %d", ErrNetworkFailure, resp.StatusCode)
	}

	limit := s.config.MaxAssetBytes
	if limit <= 0 {
		limit = config.DefaultMaxAssetBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %v", ErrNetworkFailure, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrEncodingFailure)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("%w: body exceeds %d bytes", ErrEncodingFailure, limit)
	}

	return utils.EncodeDataURL(resp.Header.Get("Content-Type"), body), nil
}

func (s *CacheService) entry(key, originURL, payload, category string) models.CacheEntry {
	return models.CacheEntry{
		Key:       key,
		OriginURL: originURL,
		Payload:   payload,
		SizeBytes: int64(len(payload)),
		StoredAt:  s.now().UTC(),
		Category:  category,
	}
}

var _ interfaces.CacheServiceInterface = (*CacheService)(nil)
