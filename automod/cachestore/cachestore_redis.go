package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "warden/cache/"

// Redis-backed cache shared by every bot process, with a small in-process TinyLFU in front of it. The local layer means a purge is only seen immediately by the process which issued it; others see it once their local entry expires.
type RedisCacheStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(rdb *redis.Client, ttl time.Duration) *RedisCacheStore {
	// local entries expire well before the shared ones
	localTTL := min(ttl, time.Minute)
	return &RedisCacheStore{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, localTTL),
		}),
		TTL: ttl,
	}
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	switch err := s.Data.Get(ctx, redisCachePrefix+entryKey(name, key), &val); {
	case errors.Is(err, cache.ErrCacheMiss):
		return "", nil
	case err != nil:
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	item := cache.Item{
		Ctx:   ctx,
		Key:   redisCachePrefix + entryKey(name, key),
		Value: val,
		TTL:   s.TTL,
	}
	return s.Data.Set(&item)
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	if err := s.Data.Delete(ctx, redisCachePrefix+entryKey(name, key)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return err
	}
	return nil
}
