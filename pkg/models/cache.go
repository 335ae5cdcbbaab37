// pkg/models/cache.go
package models

import "time"

// Collection names one independently indexed set of cache entries
type Collection string

const (
	CollectionIcons     Collection = "icons"
	CollectionFonts     Collection = "fonts"
	CollectionResources Collection = "resources"
	CollectionMetadata  Collection = "metadata"
)

// AllCollections lists every collection the store defines, in schema order
var AllCollections = []Collection{
	CollectionIcons,
	CollectionFonts,
	CollectionResources,
	CollectionMetadata,
}

// Valid reports whether c is one of the defined collections
func (c Collection) Valid() bool {
	for _, known := range AllCollections {
		if c == known {
			return true
		}
	}
	return false
}

// Entry categories
const (
	CategoryIcon     = "icon"
	CategoryFont     = "font"
	CategoryMetadata = "metadata"
)

// CacheEntry is one stored resource instance
type CacheEntry struct {
	Key       string    `json:"key"`
	OriginURL string    `json:"originUrl"`
	Payload   string    `json:"payload"`
	SizeBytes int64     `json:"sizeBytes"`
	StoredAt  time.Time `json:"storedAt"`
	Category  string    `json:"category,omitempty"`
}

// StorageUsage is recomputed on every request, never cached
type StorageUsage struct {
	UsedBytes  int64   `json:"usedBytes"`
	MaxBytes   int64   `json:"maxBytes"`
	Percentage float64 `json:"percentage"`
}

// CalculatePercentage calculates and sets the usage percentage
func (u *StorageUsage) CalculatePercentage() {
	if u.MaxBytes > 0 {
		u.Percentage = float64(u.UsedBytes) / float64(u.MaxBytes) * 100
	} else {
		u.Percentage = 0
	}
}

// CleanupResult describes one maybeCleanup pass
type CleanupResult struct {
	Triggered    bool     `json:"triggered"`
	Skipped      bool     `json:"skipped,omitempty"` // another pass was already running
	IconsDeleted int      `json:"iconsDeleted"`
	FontsDeleted int      `json:"fontsDeleted"`
	UsageBefore  float64  `json:"usageBefore"`
	UsageAfter   float64  `json:"usageAfter"`
	ThresholdPct float64  `json:"thresholdPercent"`
	DurationMs   int64    `json:"durationMs"`
	Errors       []string `json:"errors,omitempty"`
}
