// Package store owns the key-value persistence for worker records,
// requests, service configs, status aggregates and points state. Every
// entity lives under a typed key from internal/keys; cross-component
// writes are forbidden by convention (registry writes workers, status
// engine writes aggregates).
package store

import (
	"context"
	"encoding/json"

	"github.com/nestwatch/nestwatch/internal/errs"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// casStamp updates the stored region timestamp only when the incoming
// one is strictly newer. Returns 1 on update, 0 on stale no-op. This
// is the explicit last-write-wins the aggregation engine relies on.
var casStamp = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if stored and tonumber(stored) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

type Store struct {
	rdb    *redis.Client
	exec   *resilience.Executor
	logger *zap.Logger
}

func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func New(rdb *redis.Client, exec *resilience.Executor, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, exec: exec, logger: logger}
}

// Redis returns the underlying client for components that need raw
// primitives (streams, pub/sub, sorted sets).
func (s *Store) Redis() *redis.Client { return s.rdb }

func (s *Store) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "set", func(ctx context.Context) error {
		if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
			return errs.Transient("redis", "set", err)
		}
		return nil
	})
}

// getJSON returns errs.NotFound when the key is absent.
func (s *Store) getJSON(ctx context.Context, key string, dest any) error {
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "get", func(ctx context.Context) error {
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return errs.NotFound("key %s not found", key)
		}
		if err != nil {
			return errs.Transient("redis", "get", err)
		}
		return json.Unmarshal(data, dest)
	})
}

func (s *Store) delete(ctx context.Context, keys ...string) error {
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "del", func(ctx context.Context) error {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return errs.Transient("redis", "del", err)
		}
		return nil
	})
}

func (s *Store) indexAdd(ctx context.Context, index, member string) error {
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "sadd", func(ctx context.Context) error {
		if err := s.rdb.SAdd(ctx, index, member).Err(); err != nil {
			return errs.Transient("redis", "sadd", err)
		}
		return nil
	})
}

func (s *Store) indexRemove(ctx context.Context, index, member string) error {
	return s.exec.Do(ctx, resilience.ClassCache, "redis", "srem", func(ctx context.Context) error {
		if err := s.rdb.SRem(ctx, index, member).Err(); err != nil {
			return errs.Transient("redis", "srem", err)
		}
		return nil
	})
}

func (s *Store) indexMembers(ctx context.Context, index string) ([]string, error) {
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "smembers",
		func(ctx context.Context) ([]string, error) {
			members, err := s.rdb.SMembers(ctx, index).Result()
			if err != nil {
				return nil, errs.Transient("redis", "smembers", err)
			}
			return members, nil
		}, nil)
}

// GetStamp reads the stored region timestamp, zero when the slot has
// never been stamped.
func (s *Store) GetStamp(ctx context.Context, key string) (int64, error) {
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "get-stamp",
		func(ctx context.Context) (int64, error) {
			v, err := s.rdb.Get(ctx, key).Int64()
			if err == redis.Nil {
				return 0, nil
			}
			if err != nil {
				return 0, errs.Transient("redis", "get-stamp", err)
			}
			return v, nil
		}, nil)
}

// CompareAndSetStamp applies the monotonic-timestamp rule for one
// (service, region) slot. False means the incoming result is stale.
func (s *Store) CompareAndSetStamp(ctx context.Context, key string, timestamp int64) (bool, error) {
	return resilience.Execute(ctx, s.exec, resilience.ClassCache, "redis", "cas-stamp",
		func(ctx context.Context) (bool, error) {
			n, err := casStamp.Run(ctx, s.rdb, []string{key}, timestamp).Int()
			if err != nil {
				return false, errs.Transient("redis", "cas-stamp", err)
			}
			return n == 1, nil
		}, nil)
}
