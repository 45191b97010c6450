package seckill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fengli18/hmdp/internal/model"
)

// fakeQueue 内存版订单流：ReadNew 投递后消息进入 pending，Ack 才移除，
// 模拟消费者组的至少一次投递语义。
type fakeQueue struct {
	mu         sync.Mutex
	news       []OrderMessage
	pending    []OrderMessage
	acked      []string
	ensureErrs int // 前 N 次 EnsureGroup 失败，模拟启动时 Redis 瞬时不可用
}

func (q *fakeQueue) EnsureGroup(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensureErrs > 0 {
		q.ensureErrs--
		return errors.New("redis unavailable")
	}
	return nil
}

func (q *fakeQueue) ReadNew(ctx context.Context) ([]OrderMessage, error) {
	q.mu.Lock()
	if len(q.news) == 0 {
		q.mu.Unlock()
		// 真实实现阻塞 2s，这里小睡避免空转
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return nil, nil
	}
	m := q.news[0]
	q.news = q.news[1:]
	q.pending = append(q.pending, m)
	q.mu.Unlock()
	return []OrderMessage{m}, nil
}

func (q *fakeQueue) ReadPending(context.Context) ([]OrderMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]OrderMessage, len(q.pending))
	copy(out, q.pending)
	return out, nil
}

func (q *fakeQueue) Ack(_ context.Context, streamID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.pending {
		if m.StreamID == streamID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.acked = append(q.acked, streamID)
	return nil
}

func (q *fakeQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// fakeStore 内存版订单存储，failures 控制前 N 次落库失败。
type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]*model.VoucherOrder // key: userId:voucherId
	failures int
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*model.VoucherOrder)}
}

func (s *fakeStore) SaveOrder(_ context.Context, order *model.VoucherOrder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failures > 0 {
		s.failures--
		return false, errors.New("db unavailable")
	}
	key := fmt.Sprintf("%d:%d", order.UserID, order.VoucherID)
	if _, ok := s.orders[key]; ok {
		return false, nil
	}
	s.orders[key] = order
	return true, nil
}

func (s *fakeStore) GetOrder(_ context.Context, orderID int64) (*model.VoucherOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func runConsumer(t *testing.T, queue Queue, store OrderStore, events EventPublisher) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewConsumer(queue, store, events).Run(ctx)
	}()
	return func() {
		cancelCtx()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumerMaterializesOrders(t *testing.T) {
	queue := &fakeQueue{news: []OrderMessage{
		{StreamID: "1-0", OrderID: 101, UserID: 1, VoucherID: 7},
		{StreamID: "2-0", OrderID: 102, UserID: 2, VoucherID: 7},
	}}
	store := newFakeStore()
	events := &fakePublisher{}

	stop := runConsumer(t, queue, store, events)
	defer stop()

	require.Eventually(t, func() bool {
		return store.orderCount() == 2 && queue.pendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return events.eventCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumerDrainsPendingBeforeNew(t *testing.T) {
	// 模拟上次崩溃遗留：消息已投递未确认
	queue := &fakeQueue{
		pending: []OrderMessage{{StreamID: "1-0", OrderID: 101, UserID: 1, VoucherID: 7}},
		news:    []OrderMessage{{StreamID: "2-0", OrderID: 102, UserID: 2, VoucherID: 7}},
	}
	store := newFakeStore()

	stop := runConsumer(t, queue, store, nil)
	defer stop()

	require.Eventually(t, func() bool {
		return store.orderCount() == 2 && queue.pendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// 遗留消息先于新消息确认
	queue.mu.Lock()
	defer queue.mu.Unlock()
	require.Equal(t, []string{"1-0", "2-0"}, queue.acked)
}

func TestConsumerIdempotentRedelivery(t *testing.T) {
	// 同一订单被投递两次（ACK 前崩溃后的重投场景）
	queue := &fakeQueue{news: []OrderMessage{
		{StreamID: "1-0", OrderID: 101, UserID: 1, VoucherID: 7},
		{StreamID: "1-1", OrderID: 101, UserID: 1, VoucherID: 7},
	}}
	store := newFakeStore()
	events := &fakePublisher{}

	stop := runConsumer(t, queue, store, events)
	defer stop()

	require.Eventually(t, func() bool {
		return queue.pendingCount() == 0 && len(queue.acked) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// 落库恰好一次，事件也只发一次
	require.Equal(t, 1, store.orderCount())
	require.Equal(t, 1, events.eventCount())
}

func TestConsumerRetriesEnsureGroup(t *testing.T) {
	// 启动时建组失败不能终止消费者，重试成功后照常消费
	queue := &fakeQueue{
		ensureErrs: 2,
		news:       []OrderMessage{{StreamID: "1-0", OrderID: 101, UserID: 1, VoucherID: 7}},
	}
	store := newFakeStore()

	stop := runConsumer(t, queue, store, nil)
	defer stop()

	require.Eventually(t, func() bool {
		return store.orderCount() == 1 && queue.pendingCount() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConsumerRetriesFaultedMessage(t *testing.T) {
	queue := &fakeQueue{news: []OrderMessage{
		{StreamID: "1-0", OrderID: 101, UserID: 1, VoucherID: 7},
	}}
	store := newFakeStore()
	store.failures = 1 // 首次落库失败，消息留在 pending 等待重试

	stop := runConsumer(t, queue, store, nil)
	defer stop()

	require.Eventually(t, func() bool {
		return store.orderCount() == 1 && queue.pendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, store.saves, 2)
}
