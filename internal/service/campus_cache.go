package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emmanuelh-dev/prexun-backend-sub000/internal/repository"
	"github.com/emmanuelh-dev/prexun-backend-sub000/pkg/redis"
)

// CampusCache resolves campus names for folio display, memory first, then
// Redis (when configured), then the database.
type CampusCache struct {
	store    *repository.Store
	redis    *redis.Client
	logger   *zap.Logger
	memCache *MemoryCache
	ttl      time.Duration
}

// MemoryCache is a small in-process map with per-entry expiry.
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]*CacheEntry
	maxAge time.Duration
}

// CacheEntry represents a cached value with timestamp
type CacheEntry struct {
	Value    string
	CachedAt time.Time
}

// NewCampusCache creates a campus name cache. redisClient may be nil.
func NewCampusCache(store *repository.Store, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *CampusCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CampusCache{
		store:    store,
		redis:    redisClient,
		logger:   logger,
		memCache: NewMemoryCache(ttl),
		ttl:      ttl,
	}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		data:   make(map[string]*CacheEntry),
		maxAge: maxAge,
	}
}

// Name returns the campus name. Must not be called inside a unit of work:
// misses read through the pool.
func (cc *CampusCache) Name(ctx context.Context, campusID int64) (string, error) {
	key := cc.cacheKey(campusID)

	if name, ok := cc.memCache.Get(key); ok {
		return name, nil
	}

	if cc.redis != nil {
		if name, err := cc.redis.Get(ctx, key); err == nil {
			cc.memCache.Set(key, name)
			return name, nil
		} else if err != redis.ErrKeyNotFound {
			cc.logger.Warn("campus cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	campus, err := cc.store.References.GetCampus(ctx, cc.store.DB(), campusID)
	if err != nil {
		return "", err
	}
	cc.Put(ctx, campusID, campus.Name)
	return campus.Name, nil
}

// Put stores a known name in both layers.
func (cc *CampusCache) Put(ctx context.Context, campusID int64, name string) {
	key := cc.cacheKey(campusID)
	cc.memCache.Set(key, name)

	if cc.redis != nil {
		if err := cc.redis.Set(ctx, key, name, cc.ttl); err != nil {
			cc.logger.Warn("campus cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Invalidate drops a campus from both layers.
func (cc *CampusCache) Invalidate(ctx context.Context, campusID int64) {
	key := cc.cacheKey(campusID)
	cc.memCache.Delete(key)
	if cc.redis != nil {
		if err := cc.redis.Delete(ctx, key); err != nil {
			cc.logger.Warn("campus cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (cc *CampusCache) cacheKey(campusID int64) string {
	return fmt.Sprintf("campus:name:%d", campusID)
}

// Get returns a live entry.
func (mc *MemoryCache) Get(key string) (string, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entry, ok := mc.data[key]
	if !ok || time.Since(entry.CachedAt) > mc.maxAge {
		return "", false
	}
	return entry.Value, true
}

// Set stores a value, dropping expired entries on the way.
func (mc *MemoryCache) Set(key, value string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for k, entry := range mc.data {
		if now.Sub(entry.CachedAt) > mc.maxAge {
			delete(mc.data, k)
		}
	}
	mc.data[key] = &CacheEntry{Value: value, CachedAt: now}
}

func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.data, key)
}
