package model

import (
	"time"

	"gorm.io/gorm"
)

// SeckillVoucher 秒杀券：库存、价格、秒杀时间段。
// Stock 是数据库侧库存；秒杀实时扣减走 Redis，消费者落库时同步扣减该字段。
type SeckillVoucher struct {
	ID        int64          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ShopID    int64     `gorm:"not null;index" json:"shop_id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	PayValue  int64     `gorm:"not null" json:"pay_value"` // 售价，单位分
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
}

func (SeckillVoucher) TableName() string { return "seckill_vouchers" }
