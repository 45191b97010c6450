package seckill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fengli18/hmdp/internal/model"
)

func newTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}))
	return NewGormStore(db), db
}

func seedVoucher(t *testing.T, db *gorm.DB, id, stock int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.SeckillVoucher{
		ID:        id,
		ShopID:    1,
		Title:     "100元代金券",
		PayValue:  8000,
		Stock:     stock,
		BeginTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}).Error)
}

func TestSaveOrderCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)
	seedVoucher(t, db, 7, 10)

	order := &model.VoucherOrder{ID: 101, UserID: 1, VoucherID: 7, Status: 1}
	created, err := store.SaveOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(8000), order.PayValue) // 券面价从数据库回填

	var voucher model.SeckillVoucher
	require.NoError(t, db.First(&voucher, 7).Error)
	require.Equal(t, int64(9), voucher.Stock)

	got, err := store.GetOrder(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(1), got.UserID)
}

func TestSaveOrderDuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)
	seedVoucher(t, db, 7, 10)

	first := &model.VoucherOrder{ID: 101, UserID: 1, VoucherID: 7, Status: 1}
	created, err := store.SaveOrder(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// 同一 (user, voucher) 重复投递：不新增订单、不再扣库存
	dup := &model.VoucherOrder{ID: 102, UserID: 1, VoucherID: 7, Status: 1}
	created, err = store.SaveOrder(ctx, dup)
	require.NoError(t, err)
	require.False(t, created)

	var count int64
	require.NoError(t, db.Model(&model.VoucherOrder{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var voucher model.SeckillVoucher
	require.NoError(t, db.First(&voucher, 7).Error)
	require.Equal(t, int64(9), voucher.Stock)
}

func TestSaveOrderStockNeverNegative(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)
	seedVoucher(t, db, 7, 1)

	created, err := store.SaveOrder(ctx, &model.VoucherOrder{ID: 101, UserID: 1, VoucherID: 7, Status: 1})
	require.NoError(t, err)
	require.True(t, created)

	// 库存已为 0：不同用户的订单被丢弃而不是把库存扣成负数
	created, err = store.SaveOrder(ctx, &model.VoucherOrder{ID: 102, UserID: 2, VoucherID: 7, Status: 1})
	require.NoError(t, err)
	require.False(t, created)

	var voucher model.SeckillVoucher
	require.NoError(t, db.First(&voucher, 7).Error)
	require.Equal(t, int64(0), voucher.Stock)
}

func TestGetOrderMissing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetOrder(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, got)
}
