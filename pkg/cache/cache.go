package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 表示缓存中不存在该 key。
var ErrNotFound = errors.New("cache: not found")

/************************ Cacher：缓存处理器抽象 ************************/
type Cacher interface {
	// 查询缓存。key 不存在时返回 ErrNotFound；空串是合法值（用于穿透哨兵）。
	Get(ctx context.Context, key string) (string, error)

	// 设置缓存。ttl 为 0 表示不设置存储层过期时间（逻辑过期模式使用）。
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
}

/************************ Locker：重建锁处理器抽象 ************************/
type Locker interface {
	// TryLock 单次尝试获取 key 对应的短期互斥锁，不等待不重试。
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock 释放锁。重建锁生命周期短且仅做去重，不做持有者校验。
	Unlock(ctx context.Context, key string) error
}
