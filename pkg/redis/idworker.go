package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// beginTimestamp 是 ID 时间戳字段的起始纪元（2022-01-01 00:00:00 UTC）。
const beginTimestamp int64 = 1640995200

// sequenceBits 序列号占低 32 位，时间戳差值左移后拼接。
const sequenceBits = 32

// IDWorker 基于 Redis 自增计数器的全局 ID 生成器。
// 生成的 64 位 ID 结构：符号位(0) + 时间戳差值 + 32 位当日序列号。
// 计数器 key 内嵌日期，每天自然重置，序列号远不会撑满 32 位。
type IDWorker struct {
	rdb rd.Cmdable
}

func NewIDWorker(rdb rd.Cmdable) *IDWorker {
	return &IDWorker{rdb: rdb}
}

// NextID 生成下一个全局唯一 ID。
// Redis 不可达时直接返回错误，由调用方视为本次操作失败，不在内部重试。
func (w *IDWorker) NextID(ctx context.Context, prefix string) (int64, error) {
	now := time.Now().UTC()
	delta := now.Unix() - beginTimestamp

	key := IncrKey(prefix, now.Format("2006:01:02"))
	seq, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("idworker incr %s: %w", key, err)
	}
	return ComposeID(delta, seq), nil
}

// ComposeID 按固定布局拼接时间戳差值与序列号。
func ComposeID(delta, seq int64) int64 {
	return delta<<sequenceBits | seq
}
