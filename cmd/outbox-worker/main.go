package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/hotel-booking-engine/internal/di"
	"github.com/prohmpiriya/hotel-booking-engine/internal/worker"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/config"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/kafka"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := di.InitRuntime(ctx, cfg, "outbox-worker")
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer shutdown()

	appLog := logger.Get()
	appLog.Info("Starting outbox worker...")

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	defer container.Close()

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID + "-outbox",
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()
	appLog.Info("Kafka producer connected", zap.Strings("brokers", cfg.Kafka.Brokers))

	outboxWorker := worker.NewOutboxWorker(container.Store, producer, &worker.OutboxWorkerConfig{
		PollInterval:         cfg.Outbox.PollInterval,
		BatchSize:            cfg.Outbox.BatchSize,
		RetryInterval:        cfg.Outbox.RetryInterval,
		CleanupInterval:      cfg.Outbox.CleanupInterval,
		CleanupRetentionDays: cfg.Outbox.CleanupRetentionDays,
	})
	if err := outboxWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start outbox worker", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down outbox worker...")
	outboxWorker.Stop()
	cancel()
}
