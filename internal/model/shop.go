package model

import (
	"time"

	"gorm.io/gorm"
)

// Shop 商铺信息，读多写少，查询走缓存客户端。
type Shop struct {
	ID        int64          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string  `gorm:"size:128;not null" json:"name"`
	Address  string  `gorm:"size:255" json:"address"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	AvgPrice int64   `json:"avg_price"` // 人均消费，单位分
	Score    int     `json:"score"`     // 评分，满分 50
}

func (Shop) TableName() string { return "shops" }
