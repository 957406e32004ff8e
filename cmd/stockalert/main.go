package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logx.New(cfg.LogLevel, cfg.ServiceName+"-stockalert")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	svc := &inventory.AlertService{
		Dedup:       &redisx.Store{RDB: rdb},
		Logger:      logger,
		ServiceName: cfg.ServiceName + "-stockalert",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockAlertGroup, orders.TopicLowStock, cfg.StockAlertWorkers, logger)
	logger.Info("stockalert consumer started",
		zap.String("group", cfg.StockAlertGroup),
		zap.String("topic", orders.TopicLowStock),
		zap.Int("workers", cfg.StockAlertWorkers))
	if err := cons.Start(ctx, svc.HandleLowStock); err != nil {
		logger.Error("consumer exit", zap.Error(err))
		return
	}
	logger.Info("stockalert stopped")
}
