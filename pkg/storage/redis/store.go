// Package redis implements the cache store on a local Redis instance.
//
// Each entry is a hash at <prefix>:<collection>:entry:<key>; a sorted set
// <prefix>:<collection>:stored_at scored by write time in milliseconds acts
// as the range index used by eviction.
//
// Two lexicographic sorted sets mirror the sqlite diagnostic indexes:
// <prefix>:<collection>:origin_url for icons, fonts and resources, and
// <prefix>:resources:category. Members are "<value>\x00<key>" with score 0.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/models"

	goredis "github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic-lock retries when a watched entry
// changes under a write
const maxTxAttempts = 5

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store provides Redis-backed persistence for the four cache collections.
type Store struct {
	client *goredis.Client
	prefix string
}

// Open connects and registers the collections. Registration is a set add,
// so reopening an existing store changes nothing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "assetcache"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := &Store{client: client, prefix: prefix}

	members := make([]interface{}, 0, len(models.AllCollections))
	for _, c := range models.AllCollections {
		members = append(members, string(c))
	}
	if err := client.SAdd(ctx, s.prefix+":collections", members...).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register collections: %w", err)
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Get loads an entry by key.
func (s *Store) Get(ctx context.Context, collection models.Collection, key string) (models.CacheEntry, bool, error) {
	if err := s.check(collection); err != nil {
		return models.CacheEntry{}, false, err
	}

	fields, err := s.client.HGetAll(ctx, s.entryKey(collection, key)).Result()
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("get %s entry: %w", collection, err)
	}
	if len(fields) == 0 {
		return models.CacheEntry{}, false, nil
	}

	size, _ := strconv.ParseInt(fields["size_bytes"], 10, 64)
	storedAt, _ := strconv.ParseInt(fields["stored_at"], 10, 64)
	entry := models.CacheEntry{
		Key:       key,
		OriginURL: fields["origin_url"],
		Payload:   fields["payload"],
		SizeBytes: size,
		Category:  fields["category"],
	}
	if storedAt > 0 {
		entry.StoredAt = time.UnixMilli(storedAt).UTC()
	}
	return entry, true, nil
}

// Put writes the entry hash, its index score and its secondary index
// members in one MULTI block. The entry is watched so members for a
// replaced origin or category are removed atomically.
func (s *Store) Put(ctx context.Context, collection models.Collection, entry models.CacheEntry) error {
	if err := s.check(collection); err != nil {
		return err
	}
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.SizeBytes < 0 {
		return fmt.Errorf("size must be >= 0, got %d", entry.SizeBytes)
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	storedAt := entry.StoredAt.UTC().UnixMilli()
	entryKey := s.entryKey(collection, entry.Key)

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		old, err := tx.HMGet(ctx, entryKey, "origin_url", "category").Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			s.unindex(ctx, pipe, collection, entry.Key, old)
			pipe.HSet(ctx, entryKey, map[string]interface{}{
				"origin_url": entry.OriginURL,
				"payload":    entry.Payload,
				"size_bytes": entry.SizeBytes,
				"stored_at":  storedAt,
				"category":   entry.Category,
			})
			pipe.ZAdd(ctx, s.indexKey(collection), goredis.Z{Score: float64(storedAt), Member: entry.Key})
			s.index(ctx, pipe, collection, entry.Key, entry.OriginURL, entry.Category)
			return nil
		})
		return err
	}, entryKey)
	if err != nil {
		return fmt.Errorf("put %s entry: %w", collection, err)
	}
	return nil
}

// KeysByOrigin lists the keys whose entry came from originURL
func (s *Store) KeysByOrigin(ctx context.Context, collection models.Collection, originURL string) ([]string, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	if !originIndexed(collection) {
		return nil, fmt.Errorf("collection %q has no origin index", collection)
	}
	keys, err := s.lexLookup(ctx, s.originKey(collection), originURL)
	if err != nil {
		return nil, fmt.Errorf("lookup %s by origin: %w", collection, err)
	}
	return keys, nil
}

// KeysByCategory lists the resource keys stored with category
func (s *Store) KeysByCategory(ctx context.Context, category string) ([]string, error) {
	if err := s.check(models.CollectionResources); err != nil {
		return nil, err
	}
	keys, err := s.lexLookup(ctx, s.categoryKey(), category)
	if err != nil {
		return nil, fmt.Errorf("lookup resources by category: %w", err)
	}
	return keys, nil
}

// Delete removes an entry and its index member.
func (s *Store) Delete(ctx context.Context, collection models.Collection, key string) error {
	if err := s.check(collection); err != nil {
		return err
	}
	if _, err := s.deleteKeys(ctx, collection, []string{key}); err != nil {
		return fmt.Errorf("delete %s entry: %w", collection, err)
	}
	return nil
}

// Clear removes every entry listed in the collection index, then the index.
func (s *Store) Clear(ctx context.Context, collection models.Collection) error {
	if err := s.check(collection); err != nil {
		return err
	}
	keys, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	if _, err := s.deleteKeys(ctx, collection, keys); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	indexes := []string{s.indexKey(collection)}
	if originIndexed(collection) {
		indexes = append(indexes, s.originKey(collection))
	}
	if collection == models.CollectionResources {
		indexes = append(indexes, s.categoryKey())
	}
	if err := s.client.Del(ctx, indexes...).Err(); err != nil {
		return fmt.Errorf("clear %s index: %w", collection, err)
	}
	return nil
}

// ScanExpired range-queries the index for scores <= cutoff and deletes
// each returned key.
func (s *Store) ScanExpired(ctx context.Context, collection models.Collection, cutoff time.Time) (int, error) {
	if err := s.check(collection); err != nil {
		return 0, err
	}
	keys, err := s.client.ZRangeByScore(ctx, s.indexKey(collection), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UTC().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", collection, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.deleteKeys(ctx, collection, keys)
	if err != nil {
		return 0, fmt.Errorf("delete expired %s entries: %w", collection, err)
	}
	return deleted, nil
}

// SumSizes adds up size_bytes over every indexed key.
func (s *Store) SumSizes(ctx context.Context, collection models.Collection) (int64, error) {
	if err := s.check(collection); err != nil {
		return 0, err
	}
	keys, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("sum %s sizes: %w", collection, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	cmds := make([]*goredis.StringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGet(ctx, s.entryKey(collection, key), "size_bytes")
		}
		return nil
	})
	if err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("sum %s sizes: %w", collection, err)
	}

	var total int64
	for _, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil {
			// entry hash vanished between the range and the read
			continue
		}
		total += n
	}
	return total, nil
}

// Count returns the index cardinality.
func (s *Store) Count(ctx context.Context, collection models.Collection) (int, error) {
	if err := s.check(collection); err != nil {
		return 0, err
	}
	n, err := s.client.ZCard(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

func (s *Store) deleteKeys(ctx context.Context, collection models.Collection, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	entryKeys := make([]string, len(keys))
	for i, key := range keys {
		entryKeys[i] = s.entryKey(collection, key)
	}

	cmds := make([]*goredis.IntCmd, len(keys))
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		olds := make([]*goredis.SliceCmd, len(keys))
		if _, err := tx.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, entryKey := range entryKeys {
				olds[i] = pipe.HMGet(ctx, entryKey, "origin_url", "category")
			}
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, key := range keys {
				cmds[i] = pipe.Del(ctx, entryKeys[i])
				pipe.ZRem(ctx, s.indexKey(collection), key)
				s.unindex(ctx, pipe, collection, key, olds[i].Val())
			}
			return nil
		})
		return err
	}, entryKeys...)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, cmd := range cmds {
		if cmd.Val() > 0 {
			deleted++
		}
	}
	return deleted, nil
}

// watch runs fn under WATCH on keys, retrying when a watched key changes
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

// index queues the secondary index members for key
func (s *Store) index(ctx context.Context, pipe goredis.Pipeliner, collection models.Collection, key, originURL, category string) {
	if originIndexed(collection) && originURL != "" {
		pipe.ZAdd(ctx, s.originKey(collection), goredis.Z{Member: lexMember(originURL, key)})
	}
	if collection == models.CollectionResources && category != "" {
		pipe.ZAdd(ctx, s.categoryKey(), goredis.Z{Member: lexMember(category, key)})
	}
}

// unindex queues removal of the members recorded in old, the result of
// HMGET origin_url category
func (s *Store) unindex(ctx context.Context, pipe goredis.Pipeliner, collection models.Collection, key string, old []interface{}) {
	if len(old) != 2 {
		return
	}
	if origin, ok := old[0].(string); ok && originIndexed(collection) {
		pipe.ZRem(ctx, s.originKey(collection), lexMember(origin, key))
	}
	if category, ok := old[1].(string); ok && collection == models.CollectionResources {
		pipe.ZRem(ctx, s.categoryKey(), lexMember(category, key))
	}
}

func (s *Store) lexLookup(ctx context.Context, zkey, value string) ([]string, error) {
	prefix := value + "\x00"
	members, err := s.client.ZRangeByLex(ctx, zkey, &goredis.ZRangeBy{
		Min: "[" + prefix,
		Max: "(" + value + "\x01",
	}).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, strings.TrimPrefix(m, prefix))
	}
	return keys, nil
}

func originIndexed(collection models.Collection) bool {
	switch collection {
	case models.CollectionIcons, models.CollectionFonts, models.CollectionResources:
		return true
	}
	return false
}

func lexMember(value, key string) string {
	return value + "\x00" + key
}

func (s *Store) check(collection models.Collection) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !collection.Valid() {
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

func (s *Store) entryKey(collection models.Collection, key string) string {
	return s.prefix + ":" + string(collection) + ":entry:" + key
}

func (s *Store) indexKey(collection models.Collection) string {
	return s.prefix + ":" + string(collection) + ":stored_at"
}

func (s *Store) originKey(collection models.Collection) string {
	return s.prefix + ":" + string(collection) + ":origin_url"
}

func (s *Store) categoryKey() string {
	return s.prefix + ":" + string(models.CollectionResources) + ":category"
}

var _ interfaces.StoreBackend = (*Store)(nil)
