package seckill

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// seckillScript 把资格校验、一人一单判断、库存扣减、订单消息入流
// 合并为一次原子执行。Redis 串行执行脚本，并发请求间不存在
// check-then-act 竞态，这里是整个秒杀路径唯一的同步点。
//
// 键名与 pkg/redis/keys.go 中的约定保持一致。
// KEYS[1]=订单流，ARGV[1]=voucherId，ARGV[2]=userId，ARGV[3]=orderId（可为空串）
// 返回：0 成功，1 库存不足，2 重复下单
var seckillScript = rd.NewScript(`
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]

local stockKey = 'hmdp:seckill:stock:' .. voucherId
local orderKey = 'hmdp:seckill:order:' .. voucherId

if tonumber(redis.call('GET', stockKey) or '0') <= 0 then
  return 1
end
if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end

redis.call('DECRBY', stockKey, 1)
redis.call('SADD', orderKey, userId)
if orderId ~= '' then
  redis.call('XADD', KEYS[1], '*', 'id', orderId, 'userId', userId, 'voucherId', voucherId)
end
return 0
`)

// RedisReserver 在 Redis 侧执行秒杀预占脚本。
type RedisReserver struct {
	rdb    rd.Cmdable
	stream string
}

func NewRedisReserver(rdb rd.Cmdable, stream string) *RedisReserver {
	return &RedisReserver{rdb: rdb, stream: stream}
}

// Reserve 执行预占脚本并返回脚本结果码。
// Redis 不可达时返回错误，不在内部重试。
func (r *RedisReserver) Reserve(ctx context.Context, voucherID, userID, orderID int64) (int, error) {
	return seckillScript.Run(ctx, r.rdb, []string{r.stream}, voucherID, userID, orderID).Int()
}
