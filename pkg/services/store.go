package service

import (
	"context"
	"time"

	"asset-cache/pkg/models"
)

// CacheStore is the per-collection view over the engine's store. Every
// call waits for initialization first.
type CacheStore struct {
	engine     *Engine
	collection models.Collection
}

// NewCacheStore binds engine to one collection
func NewCacheStore(engine *Engine, collection models.Collection) *CacheStore {
	return &CacheStore{engine: engine, collection: collection}
}

// Collection returns the bound collection
func (c *CacheStore) Collection() models.Collection {
	return c.collection
}

func (c *CacheStore) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return store.Get(ctx, c.collection, key)
}

func (c *CacheStore) Put(ctx context.Context, entry models.CacheEntry) error {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return err
	}
	return store.Put(ctx, c.collection, entry)
}

func (c *CacheStore) Delete(ctx context.Context, key string) error {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return err
	}
	return store.Delete(ctx, c.collection, key)
}

func (c *CacheStore) Clear(ctx context.Context) error {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return err
	}
	return store.Clear(ctx, c.collection)
}

// ScanExpired deletes every entry with storedAt <= cutoff
func (c *CacheStore) ScanExpired(ctx context.Context, cutoff time.Time) (int, error) {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return 0, err
	}
	return store.ScanExpired(ctx, c.collection, cutoff)
}

func (c *CacheStore) SumSizes(ctx context.Context) (int64, error) {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return 0, err
	}
	return store.SumSizes(ctx, c.collection)
}

func (c *CacheStore) Count(ctx context.Context) (int, error) {
	store, err := c.engine.Store(ctx)
	if err != nil {
		return 0, err
	}
	return store.Count(ctx, c.collection)
}
