package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/tree-shop/internal/activity"
	"github.com/example/tree-shop/internal/config"
	"github.com/example/tree-shop/internal/infrastructure/kafka"
	"github.com/example/tree-shop/internal/logging"
	"go.uber.org/zap"
)

const reportInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("tree-shop-activity", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tally := activity.NewTally(logger.Named("activity"))

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger.Named("kafka"))
	defer consumer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("consuming cart activity",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.String("group", cfg.KafkaGroupID))
		if err := consumer.Consume(ctx, tally.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			report(logger, tally)
		case <-sigCh:
			logger.Info("shutting down")
			cancel()
			<-done
			report(logger, tally)
			return
		}
	}
}

func report(logger *zap.Logger, tally *activity.Tally) {
	for _, p := range tally.Snapshot() {
		logger.Info("tree activity",
			zap.Int("product_id", p.ProductID),
			zap.String("name", p.Name),
			zap.Int("added", p.Added),
			zap.Int("in_carts", p.InCarts))
	}
}
