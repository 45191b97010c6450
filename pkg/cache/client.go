package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// defaultNullTTL 空值哨兵的短过期时间，限制穿透防护期间的脏窗口。
	defaultNullTTL = 2 * time.Minute
	// defaultLockTTL 重建锁的过期时间，兜底重建方崩溃未释放的情况。
	defaultLockTTL = 10 * time.Second
)

// redisData 逻辑过期包装：存储层永不过期，过期时间内嵌在值里。
type redisData struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

// Client 通用缓存客户端，提供缓存穿透与缓存击穿两种防护读策略。
type Client struct {
	cacher  Cacher
	locker  Locker
	rebuild *Pool

	nullTTL time.Duration
	lockTTL time.Duration
}

// NewClient 创建缓存客户端。pool 为缓存重建工作池，可被多个 Client 共享。
func NewClient(cacher Cacher, locker Locker, pool *Pool) *Client {
	return &Client{
		cacher:  cacher,
		locker:  locker,
		rebuild: pool,
		nullTTL: defaultNullTTL,
		lockTTL: defaultLockTTL,
	}
}

// Set 序列化后写入缓存，带存储层过期时间。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return c.cacher.Set(ctx, key, string(b), ttl)
}

// SetWithLogicalExpire 以逻辑过期方式写入缓存：存储层不设 TTL，
// 过期时间内嵌在包装结构中，由读取方判断并触发重建。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	wrapper, err := json.Marshal(redisData{
		Data:       b,
		ExpireTime: time.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return c.cacher.Set(ctx, key, string(wrapper), 0)
}

// QueryWithPenetrationGuard 缓存旁路读，用空值哨兵防缓存穿透。
// 未命中时调用 loader 回源；源不存在则缓存短 TTL 空串，下次直接判定不存在。
// 返回 nil 表示数据不存在。
func QueryWithPenetrationGuard[T any](
	ctx context.Context, c *Client, key string,
	loader func(ctx context.Context) (*T, error), ttl time.Duration,
) (*T, error) {
	raw, err := c.cacher.Get(ctx, key)
	if err == nil {
		// 命中空值哨兵：源确定不存在，不再回源
		if raw == "" {
			return nil, nil
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("cache decode %s: %w", key, err)
		}
		return &v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.cacher.Set(ctx, key, "", c.nullTTL); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("cache null sentinel write failed")
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return v, nil
}

// QueryWithLogicalExpire 逻辑过期读，防热点 key 缓存击穿。
// 逻辑未过期直接返回；已过期则尝试获取重建锁，抢到锁的读者提交后台重建任务，
// 所有读者（包括抢到锁的）立即拿旧值返回，绝不阻塞等待回源。
// 同一 key 最多一个重建任务在跑。缓存不存在时返回 nil（需预热写入）。
func QueryWithLogicalExpire[T any](
	ctx context.Context, c *Client, key, lockName string,
	loader func(ctx context.Context) (*T, error), ttl time.Duration,
) (*T, error) {
	raw, err := c.cacher.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var wrapper redisData
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(wrapper.Data, &v); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", key, err)
	}
	if wrapper.ExpireTime.After(time.Now()) {
		return &v, nil
	}

	// 逻辑已过期：抢重建锁，抢不到说明有人在重建，直接返回旧值
	locked, err := c.locker.TryLock(ctx, lockName, c.lockTTL)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache rebuild lock failed")
		return &v, nil
	}
	if locked {
		submitted := c.rebuild.Submit(func() {
			// 重建任务脱离请求上下文执行，锁在所有退出路径上释放
			rebuildCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			defer func() {
				if err := c.locker.Unlock(rebuildCtx, lockName); err != nil {
					logrus.WithError(err).WithField("key", key).Warn("cache rebuild unlock failed")
				}
			}()
			fresh, err := loader(rebuildCtx)
			if err != nil {
				logrus.WithError(err).WithField("key", key).Error("cache rebuild load failed")
				return
			}
			if fresh == nil {
				return
			}
			if err := c.SetWithLogicalExpire(rebuildCtx, key, fresh, ttl); err != nil {
				logrus.WithError(err).WithField("key", key).Error("cache rebuild write failed")
			}
		})
		if !submitted {
			// 工作池饱和，放弃本次重建并立刻归还锁
			if err := c.locker.Unlock(ctx, lockName); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("cache rebuild unlock failed")
			}
		}
	}
	return &v, nil
}
