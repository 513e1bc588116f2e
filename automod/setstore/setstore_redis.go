package setstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var redisSetPrefix = "set/"

// Sets stored as native redis sets, so several bot processes share one whitelist.
type RedisSetStore struct {
	Client *redis.Client
}

var _ SetStore = (*RedisSetStore)(nil)

func NewRedisSetStore(rdb *redis.Client) *RedisSetStore {
	return &RedisSetStore{Client: rdb}
}

func (s *RedisSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	return s.Client.SIsMember(ctx, redisSetPrefix+name, val).Result()
}

func (s *RedisSetStore) SetValues(ctx context.Context, name string, vals []string) error {
	key := redisSetPrefix + name
	multi := s.Client.TxPipeline()
	multi.Del(ctx, key)
	if len(vals) > 0 {
		members := make([]any, len(vals))
		for i, v := range vals {
			members[i] = v
		}
		multi.SAdd(ctx, key, members...)
	}
	_, err := multi.Exec(ctx)
	return err
}
