package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	rd "github.com/redis/go-redis/v9"

	rediskey "github.com/fengli18/hmdp/pkg/redis"
)

// RedisCacher 是 Cacher 的 go-redis 实现。
type RedisCacher struct {
	rdb rd.Cmdable
}

func NewRedisCacher(rdb rd.Cmdable) *RedisCacher {
	return &RedisCacher{rdb: rdb}
}

func (c *RedisCacher) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (c *RedisCacher) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

// RedisLocker 是 Locker 的 go-redis 实现，底层复用带 token 的分布式锁。
// 重建耗时超过锁 TTL 时，过期持有者的延迟 Unlock 不会误删
// 新持有者的锁（token 不匹配，释放脚本跳过）。
type RedisLocker struct {
	rdb  rediskey.LockClient
	mu   sync.Mutex
	held map[string]*rediskey.Lock
}

func NewRedisLocker(rdb rediskey.LockClient) *RedisLocker {
	return &RedisLocker{
		rdb:  rdb,
		held: make(map[string]*rediskey.Lock),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lock := rediskey.NewLock(l.rdb, key)
	ok, err := lock.TryLock(ctx, ttl)
	if err != nil || !ok {
		return ok, err
	}
	l.mu.Lock()
	l.held[key] = lock
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	lock, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return lock.Unlock(ctx)
}
