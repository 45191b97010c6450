package seckill

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fengli18/hmdp/internal/model"
)

// OrderStore 订单持久化抽象，生产实现为 GormStore。
type OrderStore interface {
	// SaveOrder 幂等落库一条订单。重复投递时跳过并返回 created=false。
	SaveOrder(ctx context.Context, order *model.VoucherOrder) (created bool, err error)
	// GetOrder 查询订单，不存在时返回 nil。
	GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error)
}

// GormStore 把订单落库放在独立事务中执行：
// 查重、数据库库存扣减、订单插入要么全部生效要么全部回滚。
// 该事务由消费者调用，不嵌套在任何外层事务里。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveOrder(ctx context.Context, order *model.VoucherOrder) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 消息至少投递一次，落库前显式查重，重复投递是无操作
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", order.UserID, order.VoucherID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		var voucher model.SeckillVoucher
		if err := tx.First(&voucher, order.VoucherID).Error; err != nil {
			return err
		}
		order.PayValue = voucher.PayValue

		// 乐观扣减：stock > 0 才扣，Redis 侧已把关，这里是数据库侧兜底
		res := tx.Model(&model.SeckillVoucher{}).
			Where("id = ? AND stock > 0", order.VoucherID).
			Update("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			logrus.WithField("voucher_id", order.VoucherID).Warn("db stock exhausted, order dropped")
			return nil
		}

		if err := tx.Create(order).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (s *GormStore) GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error) {
	var order model.VoucherOrder
	err := s.db.WithContext(ctx).First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
