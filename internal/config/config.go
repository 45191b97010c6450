package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// 秒杀订单流（Redis Stream 消费者组）
	OrderStream   string
	OrderGroup    string
	OrderConsumer string

	// Kafka 订单事件导出（落库成功后对外广播）
	KafkaBrokers []string
	KafkaTopic   string

	// 缓存策略：商铺缓存 TTL 与重建工作池规模
	ShopCacheTTL   time.Duration
	RebuildWorkers int

	// 秒杀接口限流
	SeckillRateLimit  int
	SeckillRateWindow time.Duration

	// 管理接口的简单管理员令牌（demo 级别保护）
	AdminToken string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8081"),
		DBPath:            getEnv("DB_PATH", "hmdp.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		OrderStream:       getEnv("ORDER_STREAM", "hmdp:stream:orders"),
		OrderGroup:        getEnv("ORDER_GROUP", "g1"),
		OrderConsumer:     getEnv("ORDER_CONSUMER", "c1"),
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "hmdp-voucher-orders"),
		ShopCacheTTL:      30 * time.Minute,
		RebuildWorkers:    10,
		SeckillRateLimit:  1000,
		SeckillRateWindow: time.Second,
		AdminToken:        getEnv("ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	shopTTLMin, err := getEnvInt("SHOP_CACHE_TTL_MIN", int(cfg.ShopCacheTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHOP_CACHE_TTL_MIN: %w", err)
	}
	if shopTTLMin <= 0 {
		return AppConfig{}, fmt.Errorf("SHOP_CACHE_TTL_MIN must be > 0")
	}
	cfg.ShopCacheTTL = time.Duration(shopTTLMin) * time.Minute

	workers, err := getEnvInt("REBUILD_WORKERS", cfg.RebuildWorkers)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REBUILD_WORKERS: %w", err)
	}
	if workers <= 0 {
		return AppConfig{}, fmt.Errorf("REBUILD_WORKERS must be > 0")
	}
	cfg.RebuildWorkers = workers

	rateLimit, err := getEnvInt("SECKILL_RATE_LIMIT", cfg.SeckillRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SECKILL_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("SECKILL_RATE_LIMIT must be > 0")
	}
	cfg.SeckillRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("SECKILL_RATE_WINDOW_SEC", int(cfg.SeckillRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SECKILL_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("SECKILL_RATE_WINDOW_SEC must be > 0")
	}
	cfg.SeckillRateWindow = time.Duration(rateWindowSec) * time.Second

	if cfg.OrderStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_STREAM must not be empty")
	}
	if cfg.OrderGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_GROUP must not be empty")
	}
	if cfg.OrderConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_CONSUMER must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
