package seckill

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fengli18/hmdp/internal/metrics"
	"github.com/fengli18/hmdp/internal/model"
)

// Consumer 订单流的后台消费者，单实例运行。
// 落库串行化依赖单消费者：同组内只有一个 worker，数据库唯一约束下的
// 幂等判断不需要额外的按用户加锁。
//
// 每条消息的状态机只有两步：pending（已投递未确认）→ 已确认，无回退。
// 处理异常时消息留在 pending 集合，worker 记录日志后转入 pending 清理
// 循环重试，绝不退出，这是系统里唯一的自动重试路径。
type Consumer struct {
	queue  Queue
	store  OrderStore
	events EventPublisher // 可为 nil，表示不导出事件
}

func NewConsumer(queue Queue, store OrderStore, events EventPublisher) *Consumer {
	return &Consumer{queue: queue, store: store, events: events}
}

// Run 先清理本组遗留的 pending 消息（上次崩溃时已投递未确认的），
// 再进入新消息消费循环，直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) {
	// 建组失败多半是 Redis 瞬时不可用，重试到成功或 ctx 取消为止
	for {
		err := c.queue.EnsureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		logrus.WithError(err).Error("order consumer ensure group failed")
		time.Sleep(300 * time.Millisecond)
	}

	c.drainPending(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := c.queue.ReadNew(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).Error("order consumer read failed")
			time.Sleep(300 * time.Millisecond)
			continue
		}
		for _, msg := range msgs {
			if err := c.process(ctx, msg); err != nil {
				logrus.WithError(err).WithField("stream_id", msg.StreamID).Error("order consumer process failed")
				metrics.ConsumerFaults.Inc()
				// 消息未确认，转入 pending 清理重试
				c.drainPending(ctx)
			}
		}
	}
}

// drainPending 反复读取本消费者的 pending 消息并重新处理，直到清空。
// 单条失败只记录日志继续重试，不会放弃消息。
func (c *Consumer) drainPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := c.queue.ReadPending(ctx)
		if err != nil {
			logrus.WithError(err).Error("order consumer read pending failed")
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			if err := c.process(ctx, msg); err != nil {
				logrus.WithError(err).WithField("stream_id", msg.StreamID).Error("order consumer reprocess failed")
				metrics.ConsumerFaults.Inc()
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// process 幂等落库一条订单并确认消息。落库成功先于确认：
// 确认前崩溃只会导致重复投递，落库侧查重保证不会产生重复订单。
func (c *Consumer) process(ctx context.Context, msg OrderMessage) error {
	order := &model.VoucherOrder{
		ID:        msg.OrderID,
		UserID:    msg.UserID,
		VoucherID: msg.VoucherID,
		Status:    1,
	}
	created, err := c.store.SaveOrder(ctx, order)
	if err != nil {
		return err
	}
	if err := c.queue.Ack(ctx, msg.StreamID); err != nil {
		return err
	}
	if created {
		metrics.OrdersCreated.Inc()
		c.publishEvent(ctx, order)
	}
	return nil
}

// publishEvent 事件导出是尽力而为的旁路输出，失败只记日志，不影响订单确认。
func (c *Consumer) publishEvent(ctx context.Context, order *model.VoucherOrder) {
	if c.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ev := OrderEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		VoucherID: order.VoucherID,
		PayValue:  order.PayValue,
		CreatedAt: time.Now(),
	}
	if err := c.events.Publish(pubCtx, ev); err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Warn("order event publish failed")
	}
}
