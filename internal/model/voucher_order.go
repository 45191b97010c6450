package model

import (
	"time"

	"gorm.io/gorm"
)

// VoucherOrder 秒杀订单。ID 由全局 ID 生成器预先分配，不用自增主键。
// (user_id, voucher_id) 唯一索引兜底一人一单，消费者落库前还会显式查重。
type VoucherOrder struct {
	ID        int64          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID    int64 `gorm:"not null;uniqueIndex:idx_user_voucher" json:"user_id"`
	VoucherID int64 `gorm:"not null;uniqueIndex:idx_user_voucher" json:"voucher_id"`
	PayValue  int64 `gorm:"not null" json:"pay_value"`
	Status    int   `gorm:"not null;default:1" json:"status"` // 1 未支付 2 已支付 3 已核销 4 已取消
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
