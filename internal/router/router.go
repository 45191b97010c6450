package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/fengli18/hmdp/internal/config"
	"github.com/fengli18/hmdp/internal/metrics"
	"github.com/fengli18/hmdp/internal/middleware"
	"github.com/fengli18/hmdp/internal/model"
	"github.com/fengli18/hmdp/internal/seckill"
	"github.com/fengli18/hmdp/pkg/cache"
	rediskey "github.com/fengli18/hmdp/pkg/redis"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, cc *cache.Client,
	svc *seckill.Service, store seckill.OrderStore, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Shop：逻辑过期读 + 管理端预热
	r.GET("/api/shop/:id", getShop(db, cc, cfg.ShopCacheTTL))
	r.POST("/api/shop", createShop(db))
	r.POST("/api/shop/warmup/:id", warmupShop(db, cc, cfg.AdminToken, cfg.ShopCacheTTL))

	// Voucher：创建时预热 Redis 库存，查询走穿透防护缓存
	r.POST("/api/voucher", createVoucher(db, rdb, cfg.AdminToken))
	r.GET("/api/voucher/:id", getVoucher(db, cc))
	r.GET("/api/voucher/stock/:id", getVoucherStock(rdb))

	// Seckill
	r.POST("/api/voucher/seckill/:id",
		middleware.RedisRateLimit(rdb, cfg.SeckillRateLimit, cfg.SeckillRateWindow),
		seckillVoucher(db, cc, svc))
	r.GET("/api/order/seckill/:id", getSeckillOrder(store))
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": name + " 无效"})
		return 0, false
	}
	return id, true
}

// getShop 查询商铺，逻辑过期读：过期也立即返回旧值，后台异步重建。
func getShop(db *gorm.DB, cc *cache.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		shop, err := cache.QueryWithLogicalExpire(c.Request.Context(), cc,
			rediskey.ShopKey(id), fmt.Sprintf("shop:%d", id),
			shopLoader(db, id), ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if shop == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商铺不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": shop})
	}
}

// shopLoader 回源查询商铺，纯读操作，可并发可重复调用。
func shopLoader(db *gorm.DB, id int64) func(ctx context.Context) (*model.Shop, error) {
	return func(ctx context.Context) (*model.Shop, error) {
		var shop model.Shop
		if err := db.WithContext(ctx).First(&shop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &shop, nil
	}
}

func createShop(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string  `json:"name" binding:"required"`
			Address  string  `json:"address"`
			X        float64 `json:"x"`
			Y        float64 `json:"y"`
			AvgPrice int64   `json:"avg_price"`
			Score    int     `json:"score"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		shop := &model.Shop{
			Name:     req.Name,
			Address:  req.Address,
			X:        req.X,
			Y:        req.Y,
			AvgPrice: req.AvgPrice,
			Score:    req.Score,
		}
		if err := db.Create(shop).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": shop})
	}
}

// warmupShop 将商铺以逻辑过期方式预热进缓存。
// 逻辑过期读要求 key 先存在，热点商铺上线前由管理端调用。
func warmupShop(db *gorm.DB, cc *cache.Client, adminToken string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var shop model.Shop
		if err := db.First(&shop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商铺不存在"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := cc.SetWithLogicalExpire(c.Request.Context(), rediskey.ShopKey(id), &shop, ttl); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

// createVoucher 创建秒杀券（含时间窗校验），并把库存预热到 Redis。
func createVoucher(db *gorm.DB, rdb *rd.Client, adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		var req struct {
			ShopID    int64  `json:"shop_id" binding:"required,min=1"`
			Title     string `json:"title" binding:"required"`
			PayValue  int64  `json:"pay_value" binding:"required,min=1"`
			Stock     int64  `json:"stock" binding:"required,min=1"`
			BeginTime string `json:"begin_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "begin_time 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(begin) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 必须晚于 begin_time"})
			return
		}
		v := &model.SeckillVoucher{
			ShopID:    req.ShopID,
			Title:     req.Title,
			PayValue:  req.PayValue,
			Stock:     req.Stock,
			BeginTime: begin,
			EndTime:   end,
		}
		if err := db.Create(v).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		// 库存同步写入 Redis，秒杀脚本只看这份库存
		if err := rdb.Set(c.Request.Context(), rediskey.StockKey(v.ID), v.Stock, 0).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		metrics.VoucherStock.WithLabelValues(strconv.FormatInt(v.ID, 10)).Set(float64(v.Stock))
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// getVoucher 查询秒杀券信息，缓存旁路 + 空值哨兵防穿透。
func getVoucher(db *gorm.DB, cc *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		v, err := cache.QueryWithPenetrationGuard(c.Request.Context(), cc,
			rediskey.VoucherKey(id), voucherLoader(db, id), 30*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "秒杀券不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

func voucherLoader(db *gorm.DB, id int64) func(ctx context.Context) (*model.SeckillVoucher, error) {
	return func(ctx context.Context) (*model.SeckillVoucher, error) {
		var v model.SeckillVoucher
		if err := db.WithContext(ctx).First(&v, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &v, nil
	}
}

// getVoucherStock 查询 Redis 中的实时库存。
func getVoucherStock(rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		val, err := rdb.Get(c.Request.Context(), rediskey.StockKey(id)).Int64()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"stock": int64(0)}})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		metrics.VoucherStock.WithLabelValues(strconv.FormatInt(id, 10)).Set(float64(val))
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"stock": val}})
	}
}

// seckillVoucher 秒杀下单入口。
// 关键流程：
// 1. 券信息走缓存读，校验秒杀时间窗
// 2. 预占脚本原子完成库存判断、一人一单判断、扣减与订单消息入流
// 3. 立即返回订单 ID，落库由后台消费者异步完成
func seckillVoucher(db *gorm.DB, cc *cache.Client, svc *seckill.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		voucherID, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req struct {
			UserID int64 `json:"user_id" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		v, err := cache.QueryWithPenetrationGuard(c.Request.Context(), cc,
			rediskey.VoucherKey(voucherID), voucherLoader(db, voucherID), 30*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "秒杀券不存在"})
			return
		}
		now := time.Now()
		if now.Before(v.BeginTime) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀尚未开始"})
			return
		}
		if now.After(v.EndTime) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀已结束"})
			return
		}

		orderID, err := svc.SeckillVoucher(c.Request.Context(), voucherID, req.UserID)
		if err != nil {
			switch {
			case errors.Is(err, seckill.ErrStockInsufficient):
				metrics.SeckillRequests.WithLabelValues("stock_insufficient").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "库存不足"})
			case errors.Is(err, seckill.ErrDuplicateOrder):
				metrics.SeckillRequests.WithLabelValues("duplicate").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "不能重复下单"})
			default:
				metrics.SeckillRequests.WithLabelValues("error").Inc()
				c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			}
			return
		}
		metrics.SeckillRequests.WithLabelValues("success").Inc()
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"order_id": orderID}})
	}
}

// getSeckillOrder 查询秒杀订单落库状态。
// 下单成功到订单可查之间有异步窗口，未查到时返回 processing 而非 404。
func getSeckillOrder(store seckill.OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		order, err := store.GetOrder(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"status": "processing"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"status": "created", "order": order}})
	}
}
