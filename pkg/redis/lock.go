package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// unlockScript 仅当锁值与持有者 token 匹配时才删除。
// GET 与 DEL 必须在同一脚本内执行：锁过期后被他人重新获取时，
// 分开执行会把别人的锁误删掉。
var unlockScript = rd.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockClient 是锁实现所需的最小 Redis 能力，*rd.Client 与 rd.Cmdable 均满足。
type LockClient interface {
	rd.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *rd.BoolCmd
}

// Lock 是基于 Redis SETNX 的非阻塞分布式互斥锁。
// 每个实例持有随机 token 标识持有者，防止跨持有者释放。
type Lock struct {
	rdb   LockClient
	key   string
	token string
}

// NewLock 创建名为 name 的锁对象，token 由 uuid 随机生成。
func NewLock(rdb LockClient, name string) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   LockKey(name),
		token: uuid.NewString(),
	}
}

// TryLock 尝试获取锁，单次尝试不等待。
// 返回 false 表示锁被占用，属于正常竞争结果而非错误；
// 调用方必须放弃本次临界区，不得在未持锁的情况下继续执行。
func (l *Lock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
}

// Unlock 释放锁。token 不匹配时静默跳过（锁已过期并被他人持有）。
func (l *Lock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
