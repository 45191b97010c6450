package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// OrderMessage 是预占脚本写入订单流的消息。
type OrderMessage struct {
	StreamID  string // 流内消息 ID，用于 ACK
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// Queue 订单消息队列抽象：读新消息、读本组 pending、确认。
// 消息至少投递一次，消费侧落库必须幂等。
type Queue interface {
	EnsureGroup(ctx context.Context) error
	// ReadNew 阻塞有限时长等待新消息，无消息时返回空切片。
	ReadNew(ctx context.Context) ([]OrderMessage, error)
	// ReadPending 从头读取本消费者已投递未确认的消息，不阻塞。
	ReadPending(ctx context.Context) ([]OrderMessage, error)
	Ack(ctx context.Context, streamID string) error
}

// StreamQueue 基于 Redis Stream 消费者组的 Queue 实现。
type StreamQueue struct {
	rdb      rd.Cmdable
	stream   string
	group    string
	consumer string
}

func NewStreamQueue(rdb rd.Cmdable, stream, group, consumer string) *StreamQueue {
	return &StreamQueue{rdb: rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup 创建消费者组（连同流一起创建），组已存在时视为成功。
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (q *StreamQueue) ReadNew(ctx context.Context) ([]OrderMessage, error) {
	return q.readGroup(ctx, ">", 2*time.Second)
}

func (q *StreamQueue) ReadPending(ctx context.Context) ([]OrderMessage, error) {
	return q.readGroup(ctx, "0", -1)
}

func (q *StreamQueue) readGroup(ctx context.Context, streamID string, block time.Duration) ([]OrderMessage, error) {
	streams, err := q.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, streamID},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]OrderMessage, 0, 1)
	for _, s := range streams {
		for _, xm := range s.Messages {
			msg, err := parseOrderMessage(xm)
			if err != nil {
				return nil, fmt.Errorf("stream %s message %s: %w", q.stream, xm.ID, err)
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

// Ack 确认并删除消息：已确认的消息无需保留在流中。
func (q *StreamQueue) Ack(ctx context.Context, streamID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, streamID)
	pipe.XDel(ctx, q.stream, streamID)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderMessage(xm rd.XMessage) (OrderMessage, error) {
	orderID, err := getStreamInt64(xm.Values, "id")
	if err != nil {
		return OrderMessage{}, err
	}
	userID, err := getStreamInt64(xm.Values, "userId")
	if err != nil {
		return OrderMessage{}, err
	}
	voucherID, err := getStreamInt64(xm.Values, "voucherId")
	if err != nil {
		return OrderMessage{}, err
	}
	return OrderMessage{
		StreamID:  xm.ID,
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
	}, nil
}

func getStreamInt64(values map[string]interface{}, key string) (int64, error) {
	v, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid field %s: %q", key, x)
		}
		return n, nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid field %s: %q", key, x)
		}
		return n, nil
	case int64:
		return x, nil
	default:
		return 0, fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
