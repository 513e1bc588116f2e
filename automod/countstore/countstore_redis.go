package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCountPrefix    = "warden/count/"
	redisDistinctPrefix = "warden/offenders/"
)

// Plain counters are INCR keys; distinct counters are HyperLogLogs, so distinct counts are approximate at large cardinalities.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(rdb *redis.Client) *RedisCountStore {
	return &RedisCountStore{
		Client: rdb,
	}
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+bucketKey(name, val, period, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return c, err
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periods {
			key := redisCountPrefix + bucketKey(name, val, p.name, now)
			pipe.Incr(ctx, key)
			if p.retention > 0 {
				pipe.Expire(ctx, key, p.retention)
			}
		}
		return nil
	})
	return err
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	c, err := s.Client.PFCount(ctx, redisDistinctPrefix+bucketKey(name, bucket, period, time.Now())).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return int(c), err
}

func (s *RedisCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	now := time.Now()
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periods {
			key := redisDistinctPrefix + bucketKey(name, bucket, p.name, now)
			pipe.PFAdd(ctx, key, val)
			if p.retention > 0 {
				pipe.Expire(ctx, key, p.retention)
			}
		}
		return nil
	})
	return err
}
