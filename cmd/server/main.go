package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fengli18/hmdp/internal/config"
	"github.com/fengli18/hmdp/internal/model"
	"github.com/fengli18/hmdp/internal/router"
	"github.com/fengli18/hmdp/internal/seckill"
	"github.com/fengli18/hmdp/pkg/cache"
	rediskey "github.com/fengli18/hmdp/pkg/redis"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load")
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("db open")
	}
	if err := db.AutoMigrate(&model.Shop{}, &model.SeckillVoucher{}, &model.VoucherOrder{}); err != nil {
		logrus.WithError(err).Fatal("db migrate")
	}

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("redis ping")
	}

	// 缓存重建工作池：进程级单例，随进程启动创建、退出时关闭
	pool := cache.NewPool(cfg.RebuildWorkers, 100)
	defer pool.Close()
	cc := cache.NewClient(cache.NewRedisCacher(rdb), cache.NewRedisLocker(rdb), pool)

	idWorker := rediskey.NewIDWorker(rdb)
	reserver := seckill.NewRedisReserver(rdb, cfg.OrderStream)
	svc := seckill.NewService(idWorker, reserver)

	store := seckill.NewGormStore(db)
	queue := seckill.NewStreamQueue(rdb, cfg.OrderStream, cfg.OrderGroup, cfg.OrderConsumer)
	publisher := seckill.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	// 订单消费者：单实例后台运行，退出由 ctx 控制
	consumer := seckill.NewConsumer(queue, store, publisher)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx)
	}()

	r := gin.Default()
	router.Setup(r, db, rdb, cc, svc, store, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logrus.WithField("addr", cfg.HTTPAddr).Info("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("http shutdown")
	}
	<-consumerDone
}
