package seckill

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStockInsufficient 库存不足，预期内的用户可见失败。
	ErrStockInsufficient = errors.New("seckill: stock insufficient")
	// ErrDuplicateOrder 同一用户重复下单，预期内的用户可见失败。
	ErrDuplicateOrder = errors.New("seckill: duplicate order")
)

// IDGenerator 订单 ID 分配器抽象，生产实现为 pkg/redis.IDWorker。
type IDGenerator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

// Reserver 预占脚本执行器抽象，生产实现为 RedisReserver。
type Reserver interface {
	Reserve(ctx context.Context, voucherID, userID, orderID int64) (int, error)
}

// Service 秒杀下单入口。
// 成功即返回订单 ID，订单行由后台消费者异步落库，调用方不能假设
// 返回时订单行已存在，只保证最终恰好落库一次。
type Service struct {
	ids      IDGenerator
	reserver Reserver
}

func NewService(ids IDGenerator, reserver Reserver) *Service {
	return &Service{ids: ids, reserver: reserver}
}

// SeckillVoucher 对 voucherID 发起一次秒杀。
// 订单 ID 先于脚本生成：脚本成功时订单消息已带着最终 ID 入流，
// HTTP 侧绝不直接写队列，避免第二个事实来源。
func (s *Service) SeckillVoucher(ctx context.Context, voucherID, userID int64) (int64, error) {
	orderID, err := s.ids.NextID(ctx, "order")
	if err != nil {
		return 0, fmt.Errorf("seckill: allocate order id: %w", err)
	}

	code, err := s.reserver.Reserve(ctx, voucherID, userID, orderID)
	if err != nil {
		return 0, fmt.Errorf("seckill: reserve voucher %d: %w", voucherID, err)
	}
	switch code {
	case 0:
		return orderID, nil
	case 1:
		return 0, ErrStockInsufficient
	case 2:
		return 0, ErrDuplicateOrder
	default:
		return 0, fmt.Errorf("seckill: unexpected script result %d", code)
	}
}
