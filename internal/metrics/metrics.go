package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SeckillRequests 秒杀请求总数，按结果分类。
	SeckillRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hmdp_seckill_requests_total",
		Help: "Total number of seckill requests by outcome",
	}, []string{"outcome"})

	// OrdersCreated 消费者成功落库的订单总数。
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hmdp_orders_created_total",
		Help: "Total number of voucher orders persisted",
	})

	// ConsumerFaults 消费者处理异常次数（会触发 pending 重试，不会导致退出）。
	ConsumerFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hmdp_consumer_faults_total",
		Help: "Total number of order consumer processing faults",
	})

	// VoucherStock 某张券在 Redis 中的实时库存。
	VoucherStock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hmdp_voucher_stock",
		Help: "Current voucher stock level in Redis",
	}, []string{"voucher_id"})
)
